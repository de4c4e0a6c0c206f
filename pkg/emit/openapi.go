package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/schema"
	"github.com/httpseal/apiseal/pkg/session"
)

// OpenAPIVersion is the version written into generated documents.
const OpenAPIVersion = "3.0.3"

var serverVariablePattern = regexp.MustCompile(`\{([^{}]+)\}`)

// newDocument returns an empty OpenAPI document for the given server URL.
func newDocument(title, version, serverURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: OpenAPIVersion,
		Info:    &openapi3.Info{Title: title, Version: version},
		Paths:   openapi3.NewPaths(),
	}
	if serverURL != "" {
		server := &openapi3.Server{URL: serverURL}
		for _, m := range serverVariablePattern.FindAllStringSubmatch(serverURL, -1) {
			if server.Variables == nil {
				server.Variables = make(map[string]*openapi3.ServerVariable)
			}
			server.Variables[m[1]] = &openapi3.ServerVariable{Default: "localhost"}
		}
		doc.Servers = openapi3.Servers{server}
	}
	return doc
}

// OpenAPI builds an OpenAPI 3 document from c: one path per endpoint, one
// operation per method. The first session of a method supplies its request
// body; every distinct status code gets a response. The document is
// validated before it is returned.
func OpenAPI(ctx context.Context, c *session.Corpus, opts Options) (*openapi3.T, error) {
	opts = opts.withDefaults()
	doc := newDocument(opts.Title, "0.1", opts.baseURL())

	for _, g := range c.Groups {
		tag := folderName(g)
		doc.Tags = append(doc.Tags, &openapi3.Tag{Name: tag})
		for _, e := range g.Endpoints {
			addEndpoint(doc, e, tag, opts.Keep)
		}
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("generated document is invalid: %w", err)
	}
	return doc, nil
}

func addEndpoint(doc *openapi3.T, e *session.Endpoint, tag string, keep int) {
	item := doc.Paths.Value(e.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(e.Path, item)
	}

	for _, s := range e.Sessions {
		op := item.GetOperation(s.Method())
		if op == nil {
			op = &openapi3.Operation{
				Summary:    e.Name,
				Tags:       []string{tag},
				Parameters: queryParameters(e),
			}
			op.RequestBody = requestBody(s.Request, keep)
			item.SetOperation(s.Method(), op)
		}
		addResponse(op, s.Response, keep)
	}
}

func queryParameters(e *session.Endpoint) openapi3.Parameters {
	var params openapi3.Parameters
	for pair := e.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		value := pair.Value[0]
		typ := GuessValueType(value)
		p := openapi3.NewQueryParameter(pair.Key).WithSchema(valueSchema(typ))
		p.Example = typedValue(value, typ)
		params = append(params, &openapi3.ParameterRef{Value: p})
	}
	return params
}

func requestBody(req *httpmsg.Request, keep int) *openapi3.RequestBodyRef {
	if len(req.RawBody) == 0 {
		return nil
	}
	content := bodyContent(&req.Message, keep)
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithContent(content)}
}

func addResponse(op *openapi3.Operation, resp *httpmsg.Response, keep int) {
	key := "default"
	if resp.StatusCode >= 100 && resp.StatusCode <= 599 {
		key = strconv.Itoa(resp.StatusCode)
	}
	if op.Responses == nil {
		op.Responses = &openapi3.Responses{}
	}
	if op.Responses.Value(key) != nil {
		return
	}

	description := resp.Reason
	if description == "" {
		description = "N/A"
	}
	r := openapi3.NewResponse().WithDescription(description)
	if len(resp.RawBody) > 0 {
		r.WithContent(bodyContent(&resp.Message, keep))
	}
	op.Responses.Set(key, &openapi3.ResponseRef{Value: r})
}

// bodyContent describes a message body under its content type. JSON bodies
// get their derived schema, anything else a string with the body as example.
func bodyContent(m *httpmsg.Message, keep int) openapi3.Content {
	body := m.Body(keep)
	mediaType := strings.TrimSpace(strings.Split(m.Headers.Get("content-type"), ";")[0])

	if body.IsJSON() {
		if mediaType == "" {
			mediaType = "application/json"
		}
		return openapi3.NewContentWithSchema(OpenAPISchema(body.Schema), []string{mediaType})
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	s := openapi3.NewStringSchema()
	s.Example = body.Simplified
	return openapi3.NewContentWithSchema(s, []string{mediaType})
}

// OpenAPISchema converts a shape schema. OpenAPI 3.0 has no null type, so
// null values become nullable schemas without a type.
func OpenAPISchema(s *schema.Schema) *openapi3.Schema {
	if s == nil {
		return &openapi3.Schema{Nullable: true}
	}

	var out *openapi3.Schema
	switch s.Type {
	case schema.Object:
		out = openapi3.NewObjectSchema()
		for _, name := range s.PropertyNames() {
			out.WithProperty(name, OpenAPISchema(s.Properties[name]))
		}
	case schema.Array:
		out = openapi3.NewArraySchema().WithItems(OpenAPISchema(s.Items))
	case schema.Number:
		out = openapi3.NewFloat64Schema()
	case schema.Boolean:
		out = openapi3.NewBoolSchema()
	case schema.Null:
		out = &openapi3.Schema{Nullable: true}
	default:
		out = openapi3.NewStringSchema()
	}
	out.Description = s.Description
	if s.Example != nil {
		out.Example = exampleValue(s.Example)
	}
	return out
}

// valueSchema is the schema of a query or form value of a guessed type.
func valueSchema(typ string) *openapi3.Schema {
	switch typ {
	case "integer":
		return openapi3.NewIntegerSchema()
	case "number":
		return openapi3.NewFloat64Schema()
	case "boolean":
		return openapi3.NewBoolSchema()
	default:
		return openapi3.NewStringSchema()
	}
}

// WriteYAML writes doc as YAML. The document is rendered through its JSON
// form so the YAML keys match the OpenAPI field names.
func WriteYAML(w io.Writer, doc *openapi3.T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return err
	}
	return enc.Close()
}
