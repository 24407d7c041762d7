package control

import (
	"mime"
	"net/http"
	"reflect"

	"github.com/jclee94/blacklist/internal/apperr"
	"github.com/jclee94/blacklist/internal/httpserver"
)

// decodeBody decodes a control-plane request body into dst, dispatching on
// Content-Type: JSON via httpserver's shared decoder, form-encoded via
// reflection over each field's `form` struct tag. No form-decoding library
// appears anywhere in the retrieval pack, so this stays on encoding/json and
// reflect rather than reaching for gorilla/schema or similar.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == "application/x-www-form-urlencoded" {
		return decodeForm(w, r, dst)
	}
	return httpserver.DecodeAndValidate(w, r, dst)
}

func decodeForm(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := r.ParseForm(); err != nil {
		httpserver.RespondError(w, apperr.KindValidationError, "malformed form body")
		return false
	}

	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("form")
		if tag == "" {
			continue
		}
		if raw := r.PostForm.Get(tag); raw != "" {
			v.Field(i).SetString(raw)
		}
	}

	var errs []httpserver.ValidationError
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("validate") != "required" {
			continue
		}
		if v.Field(i).String() == "" {
			errs = append(errs, httpserver.ValidationError{
				Field:   field.Tag.Get("form"),
				Message: "this field is required",
			})
		}
	}
	if len(errs) > 0 {
		httpserver.RespondValidationError(w, errs)
		return false
	}

	return true
}
