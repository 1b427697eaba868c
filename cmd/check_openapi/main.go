package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const schemaRefPrefix = "#/components/schemas/"

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// operations served by services/workspace/internal/server.
var operations = []string{
	"GET /healthz",
	"GET /api/workspaces",
	"POST /api/workspaces",
	"GET /api/workspaces/{id}",
	"GET /api/workspaces/{id}/document",
	"POST /api/workspaces/{id}/messages",
	"POST /api/workspaces/{id}/tool-response",
	"PUT /api/workspaces/{id}/notes",
	"GET /api/classrooms/{id}/members",
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <workspace-openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	var errs []error
	errs = append(errs, checkOperations(doc)...)

	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateErrorResponse(errResp); err != nil {
		errs = append(errs, err)
	}
	exchange, err := getSchema(doc, "Exchange")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateExchange(exchange); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, checkRefs(doc)...)
	return errors.Join(errs...)
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkOperations(doc openAPIDoc) []error {
	var errs []error
	for _, op := range operations {
		method, path, _ := strings.Cut(op, " ")
		item, ok := doc.Paths[path]
		if !ok {
			errs = append(errs, fmt.Errorf("path %s missing", path))
			continue
		}
		if _, ok := item[strings.ToLower(method)]; !ok {
			errs = append(errs, fmt.Errorf("operation %s missing", op))
		}
	}
	return errs
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// validateErrorResponse pins the body written by the server's writeError.
func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	return nil
}

func validateExchange(s schema) error {
	if s.Type != "object" {
		return errors.New("Exchange must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"aiResponse", "newUserMessage", "newSystemMessage"} {
		if !required[field] {
			return fmt.Errorf("Exchange.required must include %q", field)
		}
	}
	if s.Properties["aiResponse"].Type != "string" {
		return errors.New("Exchange.aiResponse must be string")
	}
	for _, field := range []string{"newUserMessage", "newSystemMessage"} {
		if ref := strings.TrimSpace(s.Properties[field].Ref); ref != schemaRefPrefix+"Message" {
			return fmt.Errorf("Exchange.%s must reference Message, got %q", field, ref)
		}
	}
	return nil
}

// checkRefs reports schema references that point at undefined schemas.
func checkRefs(doc openAPIDoc) []error {
	names := make([]string, 0, len(doc.Components.Schemas))
	for name := range doc.Components.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	var walk func(where string, s schema)
	walk = func(where string, s schema) {
		if ref := strings.TrimSpace(s.Ref); ref != "" {
			target, ok := strings.CutPrefix(ref, schemaRefPrefix)
			if _, defined := doc.Components.Schemas[target]; !ok || !defined {
				errs = append(errs, fmt.Errorf("%s references undefined schema %q", where, ref))
			}
		}
		props := make([]string, 0, len(s.Properties))
		for prop := range s.Properties {
			props = append(props, prop)
		}
		sort.Strings(props)
		for _, prop := range props {
			walk(where+"."+prop, s.Properties[prop])
		}
		if s.Items != nil {
			walk(where+"[]", *s.Items)
		}
	}
	for _, name := range names {
		walk(name, doc.Components.Schemas[name])
	}
	return errs
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
