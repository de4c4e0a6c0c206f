package emit

import (
	"bufio"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/session"
)

// Viewer prints sessions as "# Request" and "# Response" sections with raw
// headers and simplified bodies.
type Viewer struct {
	out     io.Writer
	keep    int
	heading *color.Color
	mu      sync.Mutex
}

// NewViewer writes to out. Headings are colored when colored is true.
func NewViewer(out io.Writer, keep int, colored bool) *Viewer {
	heading := color.New(color.FgCyan, color.Bold)
	if colored {
		heading.EnableColor()
	} else {
		heading.DisableColor()
	}
	return &Viewer{out: out, keep: keep, heading: heading}
}

// Record prints s. It implements the capture sink interface for watch mode.
func (v *Viewer) Record(s *session.Session) error {
	return v.Write(s)
}

// Write prints both sides of s.
func (v *Viewer) Write(s *session.Session) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	w := bufio.NewWriter(v.out)
	v.section(w, "# Request", &s.Request.Message)
	v.section(w, "# Response", &s.Response.Message)
	return w.Flush()
}

func (v *Viewer) section(w *bufio.Writer, title string, m *httpmsg.Message) {
	v.heading.Fprint(w, title)
	w.WriteString("\n\n")
	w.WriteString(m.StartLine)
	w.WriteString("\n")
	w.WriteString(m.RawHeaders)
	w.WriteString("\n")
	if len(m.RawBody) > 0 {
		w.WriteString("\n")
		w.WriteString(m.Body(v.keep).Simplified)
		w.WriteString("\n")
	}
	w.WriteString("\n")
}
