package schema

import "testing"

func ptrInt(i int) *int           { return &i }
func ptrFloat(f float64) *float64 { return &f }

func TestValidateString(t *testing.T) {
	d := String("name")
	d.MinLength = ptrInt(2)
	d.MaxLength = ptrInt(10)
	d.Pattern = `^[a-z]+$`

	if _, err := d.Validate("button"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if _, err := d.Validate("B"); err == nil {
		t.Fatal("expected min_length violation")
	}
	if _, err := d.Validate("Button1"); err == nil {
		t.Fatal("expected pattern violation")
	}
	if _, err := d.Validate(42); err == nil {
		t.Fatal("expected type mismatch")
	}
}

func TestValidateNumber(t *testing.T) {
	d := Number("port")
	d.Min = ptrFloat(1024)
	d.Max = ptrFloat(65535)

	if _, err := d.Validate(3000.0); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if _, err := d.Validate(80.0); err == nil {
		t.Fatal("expected min violation")
	}
}

func TestValidateEnum(t *testing.T) {
	d := Enum("framework", "express", "fastify", "koa")
	if _, err := d.Validate("fastify"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if _, err := d.Validate("django"); err == nil {
		t.Fatal("expected constraint violation")
	}
}

func TestValidateArrayUnique(t *testing.T) {
	d := Array("tags", KindString)
	d.UniqueItems = true
	if _, err := d.Validate([]any{"a", "b"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if _, err := d.Validate([]any{"a", "a"}); err == nil {
		t.Fatal("expected uniqueness violation")
	}
}

func TestValidateObjectRequiredAndAdditional(t *testing.T) {
	d := Object("config", map[string]*Definition{
		"port": Number("port"),
	})
	d.RequiredProperties = []string{"port"}

	if _, err := d.Validate(map[string]any{"port": 3000.0}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if _, err := d.Validate(map[string]any{}); err == nil {
		t.Fatal("expected missing required property")
	}
	if _, err := d.Validate(map[string]any{"port": 3000.0, "extra": "x"}); err == nil {
		t.Fatal("expected unknown property rejection")
	}
	d.AdditionalProperties = true
	if _, err := d.Validate(map[string]any{"port": 3000.0, "extra": "x"}); err != nil {
		t.Fatalf("expected valid with additional_properties, got %v", err)
	}
}

func TestValidateDefaultMustSatisfyOwnConstraints(t *testing.T) {
	d := Number("port")
	d.Min = ptrFloat(1024)
	d.Default = 80.0
	if err := d.ValidateDefault(); err == nil {
		t.Fatal("expected default to violate its own constraint")
	}
}
