package service

import (
	"context"
	"errors"
	"testing"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/tool"
)

func echoDef() tool.Definition {
	return tool.Definition{
		Spec: tool.Spec{
			Name: "echo",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"input": tool.StringProp("Text to echo."),
			}, "input"),
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			return tool.TextResult(args["input"].(string)), nil
		},
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistryService()

	if err := reg.Register(echoDef()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(echoDef()); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d, want 1", reg.Len())
	}
}

func TestRegisterRejectsUncompilableSchema(t *testing.T) {
	reg := NewRegistryService()

	def := echoDef()
	def.Spec.InputSchema = []byte(`{"type": 42}`)
	if err := reg.Register(def); err == nil {
		t.Fatal("expected error for uncompilable schema")
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	reg := NewRegistryService()

	_, err := reg.Invoke(context.Background(), "ghost", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInvokeValidatesBeforeHandler(t *testing.T) {
	reg := NewRegistryService()

	ran := false
	def := echoDef()
	def.Handler = func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		ran = true
		return tool.TextResult("x"), nil
	}
	if err := reg.Register(def); err != nil {
		t.Fatal(err)
	}

	// Missing required argument.
	_, err := reg.Invoke(context.Background(), "echo", map[string]any{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	// Mistyped argument.
	_, err = reg.Invoke(context.Background(), "echo", map[string]any{"input": 12.5})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	if ran {
		t.Fatal("handler must not run when validation fails")
	}

	res, err := reg.Invoke(context.Background(), "echo", map[string]any{"input": "ok"})
	if err != nil {
		t.Fatalf("valid invoke: %v", err)
	}
	if !ran || res.Content[0].Text != "x" {
		t.Fatalf("handler result = %+v", res)
	}
}

func TestListIsSortedByName(t *testing.T) {
	reg := NewRegistryService()

	names := []string{"zeta", "alpha", "mid"}
	for _, name := range names {
		def := echoDef()
		def.Spec.Name = name
		if err := reg.Register(def); err != nil {
			t.Fatal(err)
		}
	}

	specs := reg.List()
	if len(specs) != 3 {
		t.Fatalf("len = %d", len(specs))
	}
	if specs[0].Name != "alpha" || specs[1].Name != "mid" || specs[2].Name != "zeta" {
		t.Fatalf("order = %v", []string{specs[0].Name, specs[1].Name, specs[2].Name})
	}
}

func TestValidateArgsWithoutInvoking(t *testing.T) {
	reg := NewRegistryService()
	if err := reg.Register(echoDef()); err != nil {
		t.Fatal(err)
	}

	if err := reg.ValidateArgs("echo", map[string]any{"input": "hi"}); err != nil {
		t.Fatalf("ValidateArgs: %v", err)
	}
	if err := reg.ValidateArgs("echo", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for missing required arg", err)
	}
	if err := reg.ValidateArgs("ghost", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
