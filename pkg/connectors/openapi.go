// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package connectors turns API descriptions into native kernel functions.
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	kerrors "github.com/jllopis/semkernel/pkg/errors"
	"github.com/jllopis/semkernel/pkg/kernel"
	"github.com/jllopis/semkernel/pkg/orchestration"
)

// Variables read by every OpenAPI function besides the operation's own
// parameters. Each holds a JSON object.
const (
	VarPathParams  = "path_params"
	VarQueryParams = "query_params"
	VarHeaders     = "headers"
	VarRequestBody = "request_body"
)

// OpenAPISpec is the subset of an OpenAPI 3 document the connector reads.
type OpenAPISpec struct {
	OpenAPI string              `json:"openapi" yaml:"openapi"`
	Info    OpenAPIInfo         `json:"info" yaml:"info"`
	Servers []OpenAPIServer     `json:"servers" yaml:"servers"`
	Paths   map[string]PathItem `json:"paths" yaml:"paths"`
}

type OpenAPIInfo struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`
}

type OpenAPIServer struct {
	URL string `json:"url" yaml:"url"`
}

type PathItem struct {
	Get    *Operation `json:"get" yaml:"get"`
	Post   *Operation `json:"post" yaml:"post"`
	Put    *Operation `json:"put" yaml:"put"`
	Delete *Operation `json:"delete" yaml:"delete"`
	Patch  *Operation `json:"patch" yaml:"patch"`
}

type Operation struct {
	OperationID string       `json:"operationId" yaml:"operationId"`
	Summary     string       `json:"summary" yaml:"summary"`
	Description string       `json:"description" yaml:"description"`
	Parameters  []Parameter  `json:"parameters" yaml:"parameters"`
	RequestBody *RequestBody `json:"requestBody" yaml:"requestBody"`
}

type Parameter struct {
	Name        string  `json:"name" yaml:"name"`
	In          string  `json:"in" yaml:"in"` // path, query, header
	Description string  `json:"description" yaml:"description"`
	Required    bool    `json:"required" yaml:"required"`
	Schema      *Schema `json:"schema" yaml:"schema"`
}

type RequestBody struct {
	Description string               `json:"description" yaml:"description"`
	Required    bool                 `json:"required" yaml:"required"`
	Content     map[string]MediaType `json:"content" yaml:"content"`
}

type MediaType struct {
	Schema *Schema `json:"schema" yaml:"schema"`
}

type Schema struct {
	Type    string `json:"type" yaml:"type"`
	Default any    `json:"default" yaml:"default"`
}

// AuthType selects how requests are authenticated.
type AuthType int

const (
	AuthNone AuthType = iota
	AuthAPIKey
	AuthBearer
	AuthBasic
)

type auth struct {
	kind   AuthType
	key    string
	header string
	user   string
	pass   string
}

// OpenAPISkill exposes the operations of an OpenAPI document as native
// functions, one per operation.
type OpenAPISkill struct {
	spec       *OpenAPISpec
	baseURL    string
	auth       auth
	httpClient *http.Client
	logger     *slog.Logger
	operations []operation
}

type operation struct {
	name   string
	method string
	path   string
	op     *Operation
}

// Option configures an OpenAPISkill.
type Option func(*OpenAPISkill)

// WithBaseURL overrides the first server of the document.
func WithBaseURL(u string) Option {
	return func(s *OpenAPISkill) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKey sends key in header, X-API-Key when header is empty.
func WithAPIKey(key, header string) Option {
	return func(s *OpenAPISkill) {
		if header == "" {
			header = "X-API-Key"
		}
		s.auth = auth{kind: AuthAPIKey, key: key, header: header}
	}
}

// WithBearerToken sends an Authorization bearer token.
func WithBearerToken(token string) Option {
	return func(s *OpenAPISkill) { s.auth = auth{kind: AuthBearer, key: token} }
}

// WithBasicAuth uses HTTP basic authentication.
func WithBasicAuth(user, pass string) Option {
	return func(s *OpenAPISkill) { s.auth = auth{kind: AuthBasic, user: user, pass: pass} }
}

// WithHTTPClient sets the client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *OpenAPISkill) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *OpenAPISkill) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// LoadOpenAPISkill reads the document from an http(s) URL or a file.
func LoadOpenAPISkill(ctx context.Context, location string, opts ...Option) (*OpenAPISkill, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		data, err = fetch(ctx, location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, fmt.Sprintf("read OpenAPI document %s", location), err)
	}
	return NewOpenAPISkill(data, opts...)
}

func fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// NewOpenAPISkill parses a JSON or YAML document.
func NewOpenAPISkill(data []byte, opts ...Option) (*OpenAPISkill, error) {
	var spec OpenAPISpec
	if err := json.Unmarshal(data, &spec); err != nil {
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, kerrors.New(kerrors.CodeConfiguration, "parse OpenAPI document (tried JSON and YAML)", err)
		}
	}

	s := &OpenAPISkill{
		spec:       &spec,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	if len(spec.Servers) > 0 {
		s.baseURL = strings.TrimRight(spec.Servers[0].URL, "/")
	}
	for _, opt := range opts {
		opt(s)
	}
	s.collect()
	return s, nil
}

// Spec returns the parsed document.
func (s *OpenAPISkill) Spec() *OpenAPISpec { return s.spec }

// collect lists the operations sorted by path and method.
func (s *OpenAPISkill) collect() {
	paths := make([]string, 0, len(s.spec.Paths))
	for p := range s.spec.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		item := s.spec.Paths[p]
		for _, m := range []struct {
			method string
			op     *Operation
		}{
			{http.MethodGet, item.Get},
			{http.MethodPost, item.Post},
			{http.MethodPut, item.Put},
			{http.MethodPatch, item.Patch},
			{http.MethodDelete, item.Delete},
		} {
			if m.op == nil {
				continue
			}
			s.operations = append(s.operations, operation{
				name:   functionName(m.method, p, m.op.OperationID),
				method: m.method,
				path:   p,
				op:     m.op,
			})
		}
	}
}

var nonIdentifier = regexp.MustCompile(`[^0-9A-Za-z_]+`)

// functionName makes an operation id fit the function name grammar.
func functionName(method, path, operationID string) string {
	name := operationID
	if name == "" {
		name = strings.ToLower(method) + path
	}
	return strings.Trim(nonIdentifier.ReplaceAllString(name, "_"), "_")
}

// Definitions returns one native definition per operation.
func (s *OpenAPISkill) Definitions() []orchestration.NativeDefinition {
	defs := make([]orchestration.NativeDefinition, 0, len(s.operations))
	for _, o := range s.operations {
		defs = append(defs, orchestration.NativeDefinition{
			Name:        o.name,
			Description: describe(o),
			Parameters:  parameters(o.op),
			Fn:          s.runner(o),
		})
	}
	return defs
}

// Register adds every operation to k under skill.
func (s *OpenAPISkill) Register(k *kernel.Kernel, skill string) (map[string]*orchestration.Function, error) {
	out := make(map[string]*orchestration.Function, len(s.operations))
	for _, def := range s.Definitions() {
		fn, err := k.RegisterNativeFunction(skill, def)
		if err != nil {
			return nil, err
		}
		s.logger.Info("connectors.openapi.registered",
			slog.String("skill", skill),
			slog.String("function", def.Name),
		)
		out[def.Name] = fn
	}
	return out, nil
}

func describe(o operation) string {
	switch {
	case o.op.Summary != "":
		return o.op.Summary
	case o.op.Description != "":
		return o.op.Description
	}
	return o.method + " " + o.path
}

func parameters(op *Operation) []orchestration.ParameterView {
	params := make([]orchestration.ParameterView, 0, len(op.Parameters)+4)
	for _, p := range op.Parameters {
		view := orchestration.ParameterView{
			Name:        p.Name,
			Description: p.Description,
			Type:        "string",
			Required:    p.Required || p.In == "path",
		}
		if p.Schema != nil {
			if p.Schema.Type != "" {
				view.Type = p.Schema.Type
			}
			if p.Schema.Default != nil {
				view.DefaultValue = fmt.Sprint(p.Schema.Default)
			}
		}
		params = append(params, view)
	}
	params = append(params,
		orchestration.ParameterView{Name: VarPathParams, Description: "A JSON object of path parameters", Type: "object"},
		orchestration.ParameterView{Name: VarQueryParams, Description: "A JSON object of query parameters", Type: "object"},
		orchestration.ParameterView{Name: VarHeaders, Description: "A JSON object of headers", Type: "object"},
	)
	if op.RequestBody != nil {
		params = append(params, orchestration.ParameterView{
			Name:        VarRequestBody,
			Description: firstNonEmpty(op.RequestBody.Description, "The JSON request body"),
			Type:        "object",
			Required:    op.RequestBody.Required,
		})
	}
	return params
}

// runner returns the native body of o. Named parameter variables win over
// the entries of the JSON object variables.
func (s *OpenAPISkill) runner(o operation) func(context.Context, *orchestration.Context) (string, error) {
	return func(ctx context.Context, kctx *orchestration.Context) (string, error) {
		vars := kctx.Variables
		pathParams, err := jsonObject(vars, VarPathParams)
		if err != nil {
			return "", err
		}
		query, err := jsonObject(vars, VarQueryParams)
		if err != nil {
			return "", err
		}
		headers, err := jsonObject(vars, VarHeaders)
		if err != nil {
			return "", err
		}
		for _, p := range o.op.Parameters {
			v, ok := vars.Get(p.Name)
			if !ok {
				continue
			}
			switch p.In {
			case "path":
				pathParams[p.Name] = v
			case "query":
				query[p.Name] = v
			case "header":
				headers[p.Name] = v
			}
		}

		path := o.path
		for _, p := range o.op.Parameters {
			if p.In != "path" {
				continue
			}
			v, ok := pathParams[p.Name]
			if !ok {
				return "", kerrors.New(kerrors.CodeInvalidInput,
					fmt.Sprintf("%s: missing path parameter %q", o.name, p.Name), nil)
			}
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(v))
		}

		target := s.baseURL + path
		if len(query) > 0 {
			q := url.Values{}
			for k, v := range query {
				q.Set(k, v)
			}
			target += "?" + q.Encode()
		}

		var body io.Reader
		raw, hasBody := vars.Get(VarRequestBody)
		if o.op.RequestBody != nil && hasBody && raw != "" {
			if !json.Valid([]byte(raw)) {
				return "", kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("%s: %s is not valid JSON", o.name, VarRequestBody), nil)
			}
			body = bytes.NewBufferString(raw)
		}

		req, err := http.NewRequestWithContext(ctx, o.method, target, body)
		if err != nil {
			return "", err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		s.applyAuth(req)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s %s: %w", o.method, path, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return "", kerrors.New(kerrors.CodeInvocation,
				fmt.Sprintf("%s %s: status %d: %s", o.method, path, resp.StatusCode, strings.TrimSpace(string(data))), nil).
				WithContext("status", resp.StatusCode)
		}
		return string(data), nil
	}
}

// jsonObject decodes the JSON object stored in name. Values that are not
// strings keep their JSON form.
func jsonObject(vars *orchestration.Variables, name string) (map[string]string, error) {
	out := make(map[string]string)
	raw, ok := vars.Get(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return out, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("%s is not a JSON object", name), err)
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, _ := json.Marshal(v)
		out[k] = string(b)
	}
	return out, nil
}

func (s *OpenAPISkill) applyAuth(req *http.Request) {
	switch s.auth.kind {
	case AuthAPIKey:
		req.Header.Set(s.auth.header, s.auth.key)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+s.auth.key)
	case AuthBasic:
		req.SetBasicAuth(s.auth.user, s.auth.pass)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
