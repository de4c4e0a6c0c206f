package emit

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/schema"
	"github.com/httpseal/apiseal/pkg/session"
)

// ErrNoResponses is returned for an operation document without responses.
var ErrNoResponses = errors.New("operation has no responses")

// ConflictingBodyError is returned when an operation declares both form
// parameters and a JSON body.
type ConflictingBodyError struct {
	Method string
	Path   string
}

func (e *ConflictingBodyError) Error() string {
	return fmt.Sprintf("%s %s: form and body cannot be used together", e.Method, e.Path)
}

// Definition describes a parameter or property. It is written as
//
//	*name: description(default:type)
//
// where the leading '*' marks it required and the parenthesized default
// and type are optional.
type Definition struct {
	Name        string
	Description string
	Required    bool
	Default     string
	HasDefault  bool
	Type        string
}

var typeAliases = map[string]string{
	"int":   "integer",
	"float": "number",
	"bool":  "boolean",
}

// ParseDefinition parses one definitions entry.
func ParseDefinition(key, text string) Definition {
	d := Definition{Name: key, Description: "N/A", Type: "string"}
	if strings.HasPrefix(key, "*") {
		d.Name = key[1:]
		d.Required = true
	}
	if text == "" {
		return d
	}
	if !strings.HasSuffix(text, ")") || !strings.Contains(text, "(") {
		d.Description = text
		return d
	}

	inner := text[:len(text)-1]
	open := strings.LastIndex(inner, "(")
	d.Description = inner[:open]
	d.Default = inner[open+1:]
	d.HasDefault = true

	if i := strings.LastIndex(d.Default, ":"); i >= 0 {
		d.Type = d.Default[i+1:]
		d.Default = d.Default[:i]
		if alias, ok := typeAliases[d.Type]; ok {
			d.Type = alias
		}
	} else {
		d.Type = GuessValueType(d.Default)
	}
	return d
}

// genRequest is the request section of an operation document.
type genRequest struct {
	Summary     string   `yaml:"summary"`
	Description string   `yaml:"description"`
	Method      string   `yaml:"method"`
	URL         string   `yaml:"url"`
	Tags        []string `yaml:"tags"`
	Form        string   `yaml:"form"`
	Body        string   `yaml:"body"`
}

type genResponse struct {
	Description string `yaml:"description"`
	Body        string `yaml:"body"`
}

type genDocument struct {
	Definitions yaml.Node   `yaml:"definitions"`
	Definations yaml.Node   `yaml:"definations"`
	Request     *genRequest `yaml:"request"`
	Responses   yaml.Node   `yaml:"responses"`
}

// Generator turns a stream of YAML operation documents into an OpenAPI
// document. A document without a request only declares definitions, which
// then apply to every later document.
type Generator struct {
	doc    *openapi3.T
	global map[string]Definition
	tags   map[string]bool
}

// NewGenerator starts an empty document.
func NewGenerator(title, version, serverURL string) *Generator {
	if title == "" {
		title = "API"
	}
	if version == "" {
		version = "0.1"
	}
	return &Generator{
		doc:    newDocument(title, version, serverURL),
		global: make(map[string]Definition),
		tags:   make(map[string]bool),
	}
}

// Document returns the document built so far.
func (g *Generator) Document() *openapi3.T {
	return g.doc
}

// Process reads every document of r. A bad document is skipped and its
// error collected; the joined errors are returned once the stream ends.
// YAML syntax errors stop the stream.
func (g *Generator) Process(r io.Reader, name string) error {
	dec := yaml.NewDecoder(r)
	var errs []error
	for n := 1; ; n++ {
		var doc genDocument
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			errs = append(errs, fmt.Errorf("%s: document %d: %w", name, n, err))
			break
		}
		if err := g.add(&doc); err != nil {
			errs = append(errs, fmt.Errorf("%s: document %d: %w", name, n, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Generator) add(doc *genDocument) error {
	defs := make(map[string]Definition, len(g.global))
	for k, v := range g.global {
		defs[k] = v
	}
	for _, node := range []*yaml.Node{&doc.Definitions, &doc.Definations} {
		for _, kv := range mappingPairs(node) {
			d := ParseDefinition(kv[0], kv[1])
			defs[d.Name] = d
		}
	}

	if doc.Request == nil {
		g.global = defs
		return nil
	}

	if doc.Responses.Kind != yaml.MappingNode || len(doc.Responses.Content) == 0 {
		return ErrNoResponses
	}

	op, path, err := g.operation(doc.Request, defs)
	if err != nil {
		return err
	}

	descriptions := descriptionsOf(defs)
	codes := make([]string, 0, len(doc.Responses.Content)/2)
	nodes := make(map[string]*yaml.Node, len(doc.Responses.Content)/2)
	for i := 0; i+1 < len(doc.Responses.Content); i += 2 {
		code := doc.Responses.Content[i].Value
		codes = append(codes, code)
		nodes[code] = doc.Responses.Content[i+1]
	}
	sort.Strings(codes)

	op.Responses = &openapi3.Responses{}
	for _, code := range codes {
		var resp genResponse
		if err := nodes[code].Decode(&resp); err != nil {
			return fmt.Errorf("response %s: %w", code, err)
		}
		r, err := genOpenAPIResponse(&resp, descriptions)
		if err != nil {
			return fmt.Errorf("response %s: %w", code, err)
		}
		op.Responses.Set(code, &openapi3.ResponseRef{Value: r})
	}

	item := g.doc.Paths.Value(path)
	if item == nil {
		item = &openapi3.PathItem{}
		g.doc.Paths.Set(path, item)
	}
	item.SetOperation(strings.ToUpper(doc.Request.Method), op)
	return nil
}

var pathParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)

func (g *Generator) operation(req *genRequest, defs map[string]Definition) (*openapi3.Operation, string, error) {
	if req.Method == "" || req.URL == "" {
		return nil, "", errors.New("request needs a method and a url")
	}
	path, query, _ := strings.Cut(req.URL, "?")
	if req.Form != "" && req.Body != "" {
		return nil, "", &ConflictingBodyError{Method: strings.ToUpper(req.Method), Path: path}
	}

	description := req.Description
	if description == "" {
		description = "N/A"
	}
	op := &openapi3.Operation{
		Summary:     req.Summary,
		Description: description,
		Tags:        req.Tags,
	}
	for _, tag := range req.Tags {
		if !g.tags[tag] {
			g.tags[tag] = true
			g.doc.Tags = append(g.doc.Tags, &openapi3.Tag{Name: tag})
		}
	}

	for _, m := range pathParamPattern.FindAllStringSubmatch(path, -1) {
		d := lookup(defs, m[1])
		p := openapi3.NewPathParameter(d.Name).
			WithDescription(d.Description).
			WithSchema(definitionSchema(d))
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{Value: p})
	}

	for _, d := range guessedDefinitions(query, defs) {
		p := openapi3.NewQueryParameter(d.Name).
			WithDescription(d.Description).
			WithRequired(d.Required).
			WithSchema(definitionSchema(d))
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{Value: p})
	}

	switch {
	case req.Form != "":
		form := openapi3.NewObjectSchema()
		for _, d := range guessedDefinitions(req.Form, defs) {
			form.WithProperty(d.Name, definitionSchema(d))
			if d.Required {
				form.Required = append(form.Required, d.Name)
			}
		}
		content := openapi3.NewContentWithSchema(form, []string{"application/x-www-form-urlencoded"})
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithContent(content)}
	case req.Body != "":
		s, err := describedSchema(req.Body, defs)
		if err != nil {
			return nil, "", fmt.Errorf("request body: %w", err)
		}
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(s),
		}
	}
	return op, path, nil
}

// guessedDefinitions types each name=value pair by its value, which also
// becomes the default. Names are sorted.
func guessedDefinitions(query string, defs map[string]Definition) []Definition {
	params := session.ParseQuery(query)
	var out []Definition
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		d := lookup(defs, pair.Key)
		value := strings.Join(pair.Value, ",")
		d.Type = GuessValueType(value)
		d.Default, d.HasDefault = value, true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lookup(defs map[string]Definition, name string) Definition {
	if d, ok := defs[name]; ok {
		return d
	}
	return ParseDefinition(name, "")
}

func definitionSchema(d Definition) *openapi3.Schema {
	s := valueSchema(d.Type)
	if d.HasDefault && d.Default != "" {
		s.Default = typedValue(d.Default, d.Type)
	}
	return s
}

func describedSchema(body string, defs map[string]Definition) (*openapi3.Schema, error) {
	v, ok := httpmsg.ParseJSON(body)
	if !ok {
		return nil, errors.New("body is not valid JSON")
	}
	return OpenAPISchema(schema.BuildDescribed(v, descriptionsOf(defs))), nil
}

func descriptionsOf(defs map[string]Definition) map[string]string {
	descriptions := make(map[string]string, len(defs))
	for name, d := range defs {
		descriptions[name] = d.Description
	}
	return descriptions
}

func genOpenAPIResponse(resp *genResponse, descriptions map[string]string) (*openapi3.Response, error) {
	description := resp.Description
	if description == "" {
		description = "N/A"
	}
	r := openapi3.NewResponse().WithDescription(description)
	if resp.Body == "" {
		return r, nil
	}
	v, ok := httpmsg.ParseJSON(resp.Body)
	if !ok {
		return nil, errors.New("body is not valid JSON")
	}
	return r.WithJSONSchema(OpenAPISchema(schema.BuildDescribed(v, descriptions))), nil
}

// mappingPairs returns the key/value pairs of a mapping node in document
// order. Non-scalar values yield an empty value.
func mappingPairs(node *yaml.Node) [][2]string {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	pairs := make([][2]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		value := ""
		if v := node.Content[i+1]; v.Kind == yaml.ScalarNode {
			value = v.Value
		}
		pairs = append(pairs, [2]string{node.Content[i].Value, value})
	}
	return pairs
}
