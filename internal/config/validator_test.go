package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate_Pipeline(t *testing.T) {
	tests := []struct {
		name      string
		buffer    int
		wantError bool
	}{
		{"minimum", MinErrorBuffer, false},
		{"default", 64, false},
		{"maximum", MaxErrorBuffer, false},
		{"zero", 0, true},
		{"negative", -5, true},
		{"too large", MaxErrorBuffer + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pipeline.ErrorBuffer = tt.buffer
			errs := cfg.Validate()

			hasError := false
			for _, err := range errs {
				if err.Field == "pipeline.error_buffer" {
					hasError = true
					break
				}
			}

			if hasError != tt.wantError {
				t.Errorf("ErrorBuffer=%d: hasError=%v, wantError=%v, errors=%v",
					tt.buffer, hasError, tt.wantError, errs)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		dir       string
		wantField string
	}{
		{"valid debug", "debug", "", ""},
		{"valid upper case", "WARN", "", ""},
		{"empty level", "", "", ""},
		{"invalid level", "verbose", "", "logging.level"},
		{"valid dir", "info", "/tmp/piper", ""},
		{"null byte in dir", "info", "/tmp/\x00piper", "logging.dir"},
		{"overlong dir", "info", "/" + strings.Repeat("a", 5000), "logging.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level
			cfg.Logging.Dir = tt.dir
			errs := cfg.Validate()

			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("expected no errors, got %v", errs)
				}
				return
			}

			found := false
			for _, err := range errs {
				if err.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestConfig_Validate_Output(t *testing.T) {
	for _, mode := range ValidColorModes() {
		cfg := Default()
		cfg.Output.Color = mode
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Errorf("Color=%q should be valid, got %v", mode, errs)
		}
	}

	cfg := Default()
	cfg.Output.Color = "rainbow"
	errs := cfg.Validate()
	if len(errs) != 1 || errs[0].Field != "output.color" {
		t.Errorf("expected one output.color error, got %v", errs)
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.ErrorBuffer = 0
	cfg.Logging.Level = "loud"
	cfg.Output.Color = "sepia"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}
