// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin_test

import (
	"strings"
	"testing"

	"github.com/plugrun/plugrun/internal/plugin"
)

const validDescriptorYAML = `
name: echo-bot
version: 1.0.0
description: Echoes emissions back
author: Plugrun Contributors
category: hook
entry: main.lua
enabled: true
capabilities:
  - hook.on-message
`

func TestValidateSchema_ValidDescriptor(t *testing.T) {
	if err := plugin.ValidateSchema([]byte(validDescriptorYAML)); err != nil {
		t.Errorf("ValidateSchema() error = %v, want nil", err)
	}
}

func TestValidateSchema_MissingRequiredField(t *testing.T) {
	yaml := strings.Replace(validDescriptorYAML, "version: 1.0.0\n", "", 1)
	if err := plugin.ValidateSchema([]byte(yaml)); err == nil {
		t.Error("ValidateSchema() expected error for missing version")
	}
}

func TestValidateSchema_EmptyData(t *testing.T) {
	if err := plugin.ValidateSchema(nil); err == nil {
		t.Error("ValidateSchema() expected error for empty data")
	}
}

func TestValidateSchema_InvalidYAML(t *testing.T) {
	if err := plugin.ValidateSchema([]byte("::: not yaml")); err == nil {
		t.Error("ValidateSchema() expected error for invalid YAML")
	}
}

func TestGenerateSchema(t *testing.T) {
	data, err := plugin.GenerateSchema()
	if err != nil {
		t.Fatalf("GenerateSchema() error = %v", err)
	}

	out := string(data)
	for _, want := range []string{plugin.GetSchemaID(), `"name"`, `"version"`, `"entry"`} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateSchema() output missing %q", want)
		}
	}
}

func TestSchemaCacheReset(t *testing.T) {
	if err := plugin.ValidateSchema([]byte(validDescriptorYAML)); err != nil {
		t.Fatalf("first validation: %v", err)
	}
	plugin.ResetSchemaCache()
	if err := plugin.ValidateSchema([]byte(validDescriptorYAML)); err != nil {
		t.Errorf("validation after cache reset: %v", err)
	}
}

func TestFormatSchemaError(t *testing.T) {
	if got := plugin.FormatSchemaError(nil); got != "" {
		t.Errorf("FormatSchemaError(nil) = %q, want empty", got)
	}

	err := plugin.ValidateSchema([]byte("name: 42"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if msg := plugin.FormatSchemaError(err); msg == "" {
		t.Error("FormatSchemaError() returned empty for real error")
	}
}
