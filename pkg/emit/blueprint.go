package emit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/session"
)

const blueprintBodyIndent = "            "

// Blueprint writes c as an API Blueprint (format 1A) document: one group
// per directory, one resource per endpoint and one action per method, with
// every retained session as an example.
func Blueprint(w io.Writer, c *session.Corpus, opts Options) error {
	opts = opts.withDefaults()
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "FORMAT: 1A\nHOST: %s\n\n# %s\n\n", opts.Host, opts.Title)

	for _, g := range c.Groups {
		fmt.Fprintf(bw, "# Group %s\n\n", groupPath(c, g))
		for _, e := range g.Endpoints {
			writeBlueprintEndpoint(bw, e, opts)
		}
	}
	return bw.Flush()
}

func writeBlueprintEndpoint(w *bufio.Writer, e *session.Endpoint, opts Options) {
	fmt.Fprintf(w, "## %s [%s]\n\n", e.Name, e.Path)

	numbered := len(e.Sessions) > 1
	lastMethod := ""
	for i, s := range e.Sessions {
		if s.Method() != lastMethod {
			fmt.Fprintf(w, "### %s %s [%s %s]\n\n", s.Method(), e.Name, s.Method(), e.URLTemplate())
			writeBlueprintParameters(w, e)
			lastMethod = s.Method()
		}

		seq := 0
		if numbered {
			seq = i + 1
		}
		writeBlueprintRequest(w, s.Request, seq, opts)
		writeBlueprintResponse(w, s.Response, opts.Keep)
	}
}

func writeBlueprintParameters(w *bufio.Writer, e *session.Endpoint) {
	if e.Parameters.Len() == 0 {
		return
	}
	w.WriteString("+ Parameters\n")
	for pair := e.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		value := pair.Value[0]
		if len(pair.Value) > 1 {
			value = "[" + strings.Join(pair.Value, ", ") + "]"
		}
		fmt.Fprintf(w, "    + `%s`: `%s` (string)\n", pair.Key, value)
	}
	w.WriteString("\n")
}

// writeBlueprintRequest skips body-less requests unless examples are numbered.
func writeBlueprintRequest(w *bufio.Writer, req *httpmsg.Request, seq int, opts Options) {
	if len(req.RawBody) == 0 && seq == 0 {
		return
	}
	if seq > 0 {
		fmt.Fprintf(w, "+ Request #%d (%s)\n\n", seq, req.ContentType())
	} else {
		fmt.Fprintf(w, "+ Request (%s)\n\n", req.ContentType())
	}
	fmt.Fprintf(w, "    ```\n    %s %s%s\n    ```\n\n", req.Method, opts.baseURL(), req.URL)
	writeBlueprintBody(w, req.Body(opts.Keep).Simplified)
	w.WriteString("\n\n")
}

func writeBlueprintResponse(w *bufio.Writer, resp *httpmsg.Response, keep int) {
	fmt.Fprintf(w, "+ Response %s (%s)\n\n", resp.Status, resp.ContentType())
	writeBlueprintBody(w, resp.Body(keep).Simplified)
	w.WriteString("\n\n")
}

func writeBlueprintBody(w *bufio.Writer, body string) {
	if body == "" {
		body = "<empty>"
	}
	w.WriteString("    + Body\n\n")
	w.WriteString(indent(body, blueprintBodyIndent))
}
