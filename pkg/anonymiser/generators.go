package anonymiser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/sprig/v3"
	"github.com/ggwhite/go-masker"
	"github.com/google/uuid"
	"github.com/icrowley/fake"
	"github.com/palantir/stacktrace"
	"golang.org/x/crypto/bcrypt"

	"github.com/hellofresh/gdpr-dump/pkg/replacer"
)

// maxAttempts bounds how often a random generator is retried while it reproduces the fetched value.
const maxAttempts = 10

type (
	// Generator produces the replacement of a fetched value.
	Generator func(original interface{}) (interface{}, error)

	// Target is the column a generator is built for.
	Target struct {
		Table  string
		Column string
	}

	generatorDef struct {
		description string
		build       func(Target, Parameters) (Generator, error)
	}
)

var generators = map[string]generatorDef{}

var fakers = map[string]func() string{
	"fake_name":           fake.FullName,
	"fake_first_name":     fake.FirstName,
	"fake_last_name":      fake.LastName,
	"fake_email":          fake.EmailAddress,
	"fake_username":       fake.UserName,
	"fake_phone":          fake.Phone,
	"fake_street_address": fake.StreetAddress,
	"fake_city":           fake.City,
	"fake_state":          fake.State,
	"fake_zip":            fake.Zip,
	"fake_country":        fake.Country,
	"fake_company":        fake.Company,
	"fake_job_title":      fake.JobTitle,
	"fake_ipv4":           fake.IPv4,
	"fake_ipv6":           fake.IPv6,
	"fake_domain":         fake.DomainName,
	"fake_word":           fake.Word,
	"fake_sentence":       fake.Sentence,
	"fake_paragraph":      fake.Paragraph,
	"fake_credit_card":    func() string { return fake.CreditCardNum("") },
	"fake_password":       fake.SimplePassword,
	"fake_user_agent":     fake.UserAgent,
	"fake_digits":         fake.Digits,
}

func init() {
	for name, next := range fakers {
		next := next
		register(name, "random "+strings.ReplaceAll(strings.TrimPrefix(name, "fake_"), "_", " "), func(_ Target, params Parameters) (Generator, error) {
			if err := validateParameters(params); err != nil {
				return nil, err
			}
			return differentFrom(next), nil
		})
	}

	register("literal", "the value param, also for NULL values", buildLiteral)
	register("null", "SQL NULL", buildNull)
	register("uuid", "random UUID v4", buildUUID)
	register("sha256", "hex sha256 of the salt param followed by the value", buildSHA256)
	register("mask", "go-masker masking selected by the type param", buildMask)
	register("template", "text/template with sprig functions over .Value .Table .Column .IsNull", buildTemplate)
	register("password_hash", "bcrypt hash of the password param with the cost param", buildPasswordHash)
	register("replace", "replaces the before param with the after param count times, values without it are kept unless required is set", buildReplace)
}

func register(name, description string, build func(Target, Parameters) (Generator, error)) {
	if _, dup := generators[name]; dup {
		panic("anonymiser: generator registered twice " + name)
	}
	generators[name] = generatorDef{description: description, build: build}
}

// Generators returns a sorted list of the names of the registered generators.
func Generators() []string {
	list := make([]string, 0, len(generators))
	for name := range generators {
		list = append(list, name)
	}
	sort.Strings(list)

	return list
}

// Describe returns the description of a generator.
func Describe(name string) string {
	return generators[name].description
}

// differentFrom retries next until its output differs from the fetched value. NULL stays NULL.
func differentFrom(next func() string) Generator {
	return func(original interface{}) (interface{}, error) {
		if original == nil {
			return nil, nil
		}

		sensitive := valueString(original)
		for i := 0; i < maxAttempts; i++ {
			if value := next(); value != sensitive {
				return value, nil
			}
		}

		return nil, stacktrace.NewError("generated value matched the fetched value %d times", maxAttempts)
	}
}

// nullSafe keeps NULL values NULL and passes others as strings to fn.
func nullSafe(fn func(string) (interface{}, error)) Generator {
	return func(original interface{}) (interface{}, error) {
		if original == nil {
			return nil, nil
		}
		return fn(valueString(original))
	}
}

func buildLiteral(_ Target, params Parameters) (Generator, error) {
	if err := validateParameters(params, "value"); err != nil {
		return nil, err
	}

	value, found := params["value"]
	if !found {
		return nil, stacktrace.NewError("literal requires a value param")
	}
	switch value.(type) {
	case nil, string, float64, bool:
	default:
		return nil, stacktrace.NewError("literal value must be a scalar, got %T", value)
	}

	return func(interface{}) (interface{}, error) {
		return value, nil
	}, nil
}

func buildNull(_ Target, params Parameters) (Generator, error) {
	if err := validateParameters(params); err != nil {
		return nil, err
	}

	return func(interface{}) (interface{}, error) {
		return nil, nil
	}, nil
}

func buildUUID(_ Target, params Parameters) (Generator, error) {
	if err := validateParameters(params); err != nil {
		return nil, err
	}

	return differentFrom(uuid.NewString), nil
}

func buildSHA256(_ Target, params Parameters) (Generator, error) {
	if err := validateParameters(params, "salt"); err != nil {
		return nil, err
	}
	salt, _, err := FindParameter[string](params, "salt")
	if err != nil {
		return nil, err
	}

	return nullSafe(func(value string) (interface{}, error) {
		sum := sha256.Sum256([]byte(salt + value))
		return hex.EncodeToString(sum[:]), nil
	}), nil
}

func buildMask(_ Target, params Parameters) (Generator, error) {
	if err := validateParameters(params, "type"); err != nil {
		return nil, err
	}
	maskType, found, err := FindParameter[string](params, "type")
	if err != nil {
		return nil, err
	}
	if !found {
		maskType = "default"
	}

	m := masker.New()
	var mask func(string) string
	switch maskType {
	case "password":
		mask = m.Password
	case "name":
		mask = m.Name
	case "address":
		mask = m.Address
	case "email":
		mask = m.Email
	case "mobile":
		mask = m.Mobile
	case "tel":
		mask = m.Telephone
	case "id":
		mask = m.ID
	case "credit_card":
		mask = m.CreditCard
	case "url":
		mask = m.URL
	case "default":
		mask = maskAll
	default:
		return nil, stacktrace.NewError("mask type must be one of password, name, address, email, mobile, tel, id, credit_card, url or default, got %q", maskType)
	}

	window := maskWindows[maskType]
	return nullSafe(func(value string) (interface{}, error) {
		if window > 0 && utf8.RuneCountInString(maskedPart(maskType, value)) <= window {
			return maskAll(value), nil
		}
		if masked := mask(value); masked != value {
			return masked, nil
		}
		return maskAll(value), nil
	}), nil
}

// maskWindows are the rune positions where go-masker stops masking. Values that end
// within the window would be kept whole with the stars appended.
var maskWindows = map[string]int{
	"id":          10,
	"credit_card": 12,
	"mobile":      7,
	"email":       7,
}

// maskedPart returns the part of value go-masker overlays, the local part of an email.
func maskedPart(maskType, value string) string {
	if maskType == "email" {
		local, _, _ := strings.Cut(value, "@")
		return local
	}
	return value
}

func maskAll(value string) string {
	return strings.Repeat("*", utf8.RuneCountInString(value))
}

// templateData is the data templates are executed with.
type templateData struct {
	Value  string
	IsNull bool
	Table  string
	Column string
}

func buildTemplate(target Target, params Parameters) (Generator, error) {
	if err := validateParameters(params, "template"); err != nil {
		return nil, err
	}
	text, found, err := FindParameter[string](params, "template")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, stacktrace.NewError("template requires a template param")
	}

	tmpl, err := template.New(target.Table + "." + target.Column).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to parse template")
	}

	return func(original interface{}) (interface{}, error) {
		var buf strings.Builder
		data := templateData{
			Value:  valueString(original),
			IsNull: original == nil,
			Table:  target.Table,
			Column: target.Column,
		}
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, stacktrace.Propagate(err, "failed to execute template")
		}
		return buf.String(), nil
	}, nil
}

// buildPasswordHash hashes once, every row gets the same hash of the configured password.
func buildPasswordHash(_ Target, params Parameters) (Generator, error) {
	if err := validateParameters(params, "password", "cost"); err != nil {
		return nil, err
	}
	password, found, err := FindParameter[string](params, "password")
	if err != nil {
		return nil, err
	}
	if !found || password == "" {
		return nil, stacktrace.NewError("password_hash requires a password param")
	}

	cost := bcrypt.DefaultCost
	if c, found, err := FindParameter[float64](params, "cost"); err != nil {
		return nil, err
	} else if found {
		cost = int(c)
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, stacktrace.NewError("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to hash password")
	}

	return nullSafe(func(string) (interface{}, error) {
		return string(hash), nil
	}), nil
}

func buildReplace(_ Target, params Parameters) (Generator, error) {
	if err := validateParameters(params, "before", "after", "count", "required"); err != nil {
		return nil, err
	}
	before, found, err := FindParameter[string](params, "before")
	if err != nil {
		return nil, err
	}
	if !found || before == "" {
		return nil, stacktrace.NewError("replace requires a before param")
	}
	after, _, err := FindParameter[string](params, "after")
	if err != nil {
		return nil, err
	}

	count := 1
	if c, found, err := FindParameter[float64](params, "count"); err != nil {
		return nil, err
	} else if found {
		count = int(c)
	}

	required, _, err := FindParameter[bool](params, "required")
	if err != nil {
		return nil, err
	}

	r := replacer.New(before, after, count)
	return func(original interface{}) (interface{}, error) {
		if required && original != nil && !strings.Contains(valueString(original), before) {
			return nil, stacktrace.NewError("value does not contain %q", before)
		}
		return r.Replace(original), nil
	}, nil
}

// valueString renders a fetched value as text.
func valueString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999")
	default:
		return fmt.Sprint(v)
	}
}
