package emit

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/session"
)

// PostmanSchemaURL identifies the collection format.
const PostmanSchemaURL = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

//go:embed postman.schema.json
var postmanSchema []byte

// Collection is a Postman v2.1 collection.
type Collection struct {
	Info CollectionInfo `json:"info"`
	Item []*Folder      `json:"item"`
}

type CollectionInfo struct {
	ID          string `json:"_postman_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      string `json:"schema"`
}

// Folder holds the endpoints of one corpus group.
type Folder struct {
	Name string  `json:"name"`
	Item []*Item `json:"item"`
}

// Item is one endpoint. Request is its first session's request and every
// retained session is a saved example response.
type Item struct {
	Name     string             `json:"name"`
	Request  *PostmanRequest    `json:"request"`
	Response []*PostmanResponse `json:"response"`
}

type PostmanHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type PostmanBody struct {
	Mode string `json:"mode"`
	Raw  string `json:"raw"`
}

type PostmanRequest struct {
	URL    string          `json:"url"`
	Method string          `json:"method"`
	Header []PostmanHeader `json:"header"`
	Body   *PostmanBody    `json:"body,omitempty"`
}

type PostmanResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	OriginalRequest *PostmanRequest `json:"originalRequest"`
	Code            int             `json:"code"`
	Status          string          `json:"status"`
	Header          []PostmanHeader `json:"header"`
	ResponseTime    int64           `json:"responseTime"`
	Body            string          `json:"body"`
}

// Postman builds a collection from c and validates it against the
// collection schema.
func Postman(c *session.Corpus, opts Options) (*Collection, error) {
	opts = opts.withDefaults()
	col := &Collection{
		Info: CollectionInfo{
			ID:          uuid.NewString(),
			Name:        opts.Title,
			Description: "Generated by apiseal from captured traffic.",
			Schema:      PostmanSchemaURL,
		},
		Item: []*Folder{},
	}

	for _, g := range c.Groups {
		folder := &Folder{Name: folderName(g), Item: []*Item{}}
		for _, e := range g.Endpoints {
			folder.Item = append(folder.Item, postmanItem(e, opts))
		}
		col.Item = append(col.Item, folder)
	}

	if err := col.Validate(); err != nil {
		return nil, err
	}
	return col, nil
}

func postmanItem(e *session.Endpoint, opts Options) *Item {
	item := &Item{
		Name:     fmt.Sprintf("%s [%s]", e.Name, e.Path),
		Response: []*PostmanResponse{},
	}
	for i, s := range e.Sessions {
		req := postmanRequest(s.Request, opts)
		if i == 0 {
			item.Request = req
		}
		resp := s.Response
		item.Response = append(item.Response, &PostmanResponse{
			ID:              uuid.NewString(),
			Name:            fmt.Sprintf("#%d-%s", i+1, resp.Status),
			OriginalRequest: req,
			Code:            resp.StatusCode,
			Status:          resp.Reason,
			Header:          postmanHeaders(resp.Headers),
			ResponseTime:    resp.Latency.Milliseconds(),
			Body:            resp.Body(opts.Keep).Simplified,
		})
	}
	return item
}

func postmanRequest(req *httpmsg.Request, opts Options) *PostmanRequest {
	r := &PostmanRequest{
		URL:    opts.baseURL() + req.URL,
		Method: req.Method,
		Header: postmanHeaders(req.Headers),
	}
	if body := req.Body(opts.Keep).Simplified; body != "" {
		r.Body = &PostmanBody{Mode: "raw", Raw: body}
	}
	return r
}

// postmanHeaders lists headers sorted by name with title-cased names.
func postmanHeaders(h httpmsg.Headers) []PostmanHeader {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	title := cases.Title(language.Und)
	out := make([]PostmanHeader, 0, len(names))
	for _, name := range names {
		out = append(out, PostmanHeader{Key: title.String(name), Value: h[name]})
	}
	return out
}

// Validate checks the collection against the embedded collection schema.
func (c *Collection) Validate() error {
	compiler := validator.NewCompiler()
	compiler.Draft = validator.Draft2020
	if err := compiler.AddResource("postman.schema.json", bytes.NewReader(postmanSchema)); err != nil {
		return fmt.Errorf("failed to add collection schema: %w", err)
	}
	sch, err := compiler.Compile("postman.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile collection schema: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("invalid collection: %w", err)
	}
	return nil
}
