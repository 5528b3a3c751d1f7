package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	maxBodyBytes = 1 << 20
	schemaBase   = "https://firmledger.local/schemas/"
)

type schemas map[string]*jsonschema.Schema

func compileSchemas() (schemas, error) {
	files, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	out := schemas{}
	for _, f := range files {
		body, err := schemaFS.ReadFile(path.Join("schemas", f.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+f.Name(), bytes.NewReader(body)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", f.Name(), err)
		}
	}
	for _, f := range files {
		s, err := c.Compile(schemaBase + f.Name())
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", f.Name(), err)
		}
		out[f.Name()] = s
	}
	return out, nil
}

// decodeValidated reads the body, checks it against the named schema and
// decodes it into out. An empty body is treated as {} when allowEmpty is set.
func (sc schemas) decodeValidated(r *http.Request, name string, out any, allowEmpty bool) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if !allowEmpty {
			return fmt.Errorf("request body is required")
		}
		raw = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	schema, ok := sc[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
