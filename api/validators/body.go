package validators

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
)

// Command bodies are small; anything bigger is a client bug.
const maxBodyBytes = 64 << 10

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields under their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// fixed messages per validator tag; tags with a parameter are formatted in
// fieldMessage
var tagMessages = map[string]string{
	"required":         "is required",
	"required_without": "is required",
	"required_unless":  "is required",
	"datetime":         "must be a YYYY-MM-DD date",
	"uuid":             "must be a valid id",
	"latitude":         "must be a latitude",
	"longitude":        "must be a longitude",
}

// DecodeJSONBody reads a single JSON object from r, rejecting unknown
// fields, and validates it. The body is drained so the connection can be
// reused.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()
	return decodeStrict(body, dest)
}

// DecodeJSONBytes is DecodeJSONBody for a payload the handler already
// buffered. An empty payload is treated as {} so required fields are the
// ones reported.
func DecodeJSONBytes(body []byte, dest any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	return decodeStrict(bytes.NewReader(body), dest)
}

// Struct validates a value assembled from path or query parameters.
func Struct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fields))
	for _, fe := range fields {
		details[fe.Field()] = fieldMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func decodeStrict(src io.Reader, dest any) error {
	dec := json.NewDecoder(src)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return malformed(err)
	}
	if dec.More() {
		return malformed(errors.New("body must hold a single JSON object"))
	}
	return Struct(dest)
}

func malformed(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
		WithDetails(map[string]any{"error": err.Error()})
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}
