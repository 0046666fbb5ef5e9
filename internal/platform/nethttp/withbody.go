package nethttp

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	en2 "github.com/go-playground/validator/translations/en"
	"github.com/gofiber/fiber/v2"
	"gopkg.in/go-playground/validator.v9"

	"github.com/cratery/cratery/internal/platform/apperr"
)

// DecodeHandlerFunc receives a struct already decoded and validated by the
// withBody decorator.
type DecodeHandlerFunc func(p any, c *fiber.Ctx) error

// ConstructorFunc builds a fresh instance of the payload type for each request.
type ConstructorFunc func() any

type decoderHandler struct {
	handler      DecodeHandlerFunc
	constructor  ConstructorFunc
	structSource any
}

func newOfType(s any) any {
	t := reflect.TypeOf(s)
	v := reflect.New(t.Elem())

	return v.Interface()
}

// FiberHandlerFunc decodes the request body into a fresh payload struct,
// rejects unknown fields, validates it, then calls the wrapped handler.
func (d *decoderHandler) FiberHandlerFunc(c *fiber.Ctx) error {
	var s any

	if d.constructor != nil {
		s = d.constructor()
	} else {
		s = newOfType(d.structSource)
	}

	body := c.Body()

	if err := json.Unmarshal(body, s); err != nil {
		return WithError(c, apperr.ValidationError{Code: "G0001", Title: "Bad Request", Message: "The request body is not valid JSON."})
	}

	marshaled, err := json.Marshal(s)
	if err != nil {
		return WithError(c, err)
	}

	var originalMap, marshaledMap map[string]any

	if err := json.Unmarshal(body, &originalMap); err != nil {
		return WithError(c, err)
	}

	if err := json.Unmarshal(marshaled, &marshaledMap); err != nil {
		return WithError(c, err)
	}

	unknown := make(map[string]string)

	for key := range originalMap {
		if _, ok := marshaledMap[key]; !ok {
			unknown[key] = "unrecognized field"
		}
	}

	if len(unknown) > 0 {
		return WithError(c, apperr.ValidationError{
			Code: "G0002", Title: "Unexpected Fields",
			Message: "The request body contains fields not recognized by this endpoint.",
			Fields:  unknown,
		})
	}

	if err := ValidateStruct(s); err != nil {
		return WithError(c, err)
	}

	return d.handler(s, c)
}

// WithDecode wraps a handler, building the payload instance via constructor.
func WithDecode(ctor ConstructorFunc, h DecodeHandlerFunc) fiber.Handler {
	d := &decoderHandler{handler: h, constructor: ctor}

	return d.FiberHandlerFunc
}

// WithBody wraps a handler, inferring the payload type from the zero value s.
func WithBody(s any, h DecodeHandlerFunc) fiber.Handler {
	d := &decoderHandler{handler: h, structSource: s}

	return d.FiberHandlerFunc
}

// ValidateStruct runs go-playground/validator over s, translating the first
// set of field errors into a platform ValidationError.
func ValidateStruct(s any) error {
	v, trans := newValidator()

	k := reflect.ValueOf(s).Kind()
	if k == reflect.Ptr {
		k = reflect.ValueOf(s).Elem().Kind()
	}

	if k != reflect.Struct {
		return nil
	}

	err := v.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Translate(trans)
	}

	return apperr.ValidationError{
		Code: "G0001", Title: "Bad Request",
		Message: "One or more fields failed validation.",
		Fields:  fields,
	}
}

//nolint:ireturn
func newValidator() (*validator.Validate, ut.Translator) {
	locale := en.New()
	uni := ut.New(locale, locale)

	trans, _ := uni.GetTranslator("en")

	v := validator.New()
	if err := en2.RegisterDefaultTranslations(v, trans); err != nil {
		panic(err)
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return v, trans
}
