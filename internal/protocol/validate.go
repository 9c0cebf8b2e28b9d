package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed schemas/hello.schema.json
	helloSchemaJSON string
	//go:embed schemas/input.schema.json
	inputSchemaJSON string

	helloSchema = jsonschema.MustCompileString("hello.schema.json", helloSchemaJSON)
	inputSchema = jsonschema.MustCompileString("input.schema.json", inputSchemaJSON)
)

// DecodeHello validates raw against the HELLO schema before decoding it.
func DecodeHello(raw []byte) (HelloMsg, error) {
	var m HelloMsg
	if err := validate(helloSchema, raw); err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("hello: %w", err)
	}
	return m, nil
}

// DecodeInput validates raw against the INPUT schema before decoding it.
func DecodeInput(raw []byte) (InputMsg, error) {
	var m InputMsg
	if err := validate(inputSchema, raw); err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("input: %w", err)
	}
	return m, nil
}

func validate(s *jsonschema.Schema, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
