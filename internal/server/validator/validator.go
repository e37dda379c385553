package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/nulzo/model-curator/pkg/api"
)

// trans is a private global translator
var trans ut.Translator

// InitValidator configures gin's validator engine: json field names in
// messages, English translations and the capability tag.
func InitValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("capability", func(fl validator.FieldLevel) bool {
		_, ok := api.ParseCapability(fl.Field().String())
		return ok
	})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
}

// ParseValidationError converts binding errors into a field -> message map
// keyed by the dotted json path.
func ParseValidationError(err error) map[string]string {
	errMap := make(map[string]string)

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errMap["body"] = "Invalid request body format. Please fix your payload."
		return errMap
	}

	for _, e := range validationErrors {
		ns := e.Namespace()
		if i := strings.Index(ns, "."); i != -1 {
			ns = ns[i+1:]
		}

		var msg string
		switch e.Tag() {
		case "oneof":
			msg = fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(e.Param(), " ", ", "))
		case "capability":
			known := make([]string, len(api.KnownCapabilities))
			for i, c := range api.KnownCapabilities {
				known[i] = string(c)
			}
			msg = fmt.Sprintf("must be one of [%s]", strings.Join(known, ", "))
		default:
			if trans != nil {
				msg = e.Translate(trans)
			} else {
				msg = e.Error()
			}
		}
		errMap[ns] = msg
	}
	return errMap
}
