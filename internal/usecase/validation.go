package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/go-playground/validator/v10"
)

const (
	MaxResumeBytes = 5 << 20
	pdfMimeType    = "application/pdf"
)

var (
	phonePattern = regexp.MustCompile(`^[\+]?[(]?[0-9]{1,4}[)]?[-\s\.]?[(]?[0-9]{1,4}[)]?[-\s\.]?[0-9]{1,9}$`)
	pdfMagic     = []byte("%PDF-")
)

// fieldRule is the validator tag and display label for one input field.
type fieldRule struct {
	label string
	tag   string
}

var rules = map[string]fieldRule{
	"name":      {label: "Name", tag: "required,min=2,max=100"},
	"email":     {label: "Email", tag: "required,email,max=254"},
	"phone":     {label: "Phone", tag: "required,phone"},
	"job_title": {label: "Job title", tag: "required,min=2,max=100"},
	"notes":     {label: "Notes", tag: "max=1000"},
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// checkField validates an already-normalized value and records the first
// violated rule on verr.
func checkField(v *validator.Validate, verr *domain.ValidationError, field, value string) {
	rule := rules[field]
	err := v.Var(value, rule.tag)
	if err == nil {
		return
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		verr.Add(field, rule.label+" is invalid")
		return
	}
	verr.Add(field, fieldMessage(rule.label, errs[0]))
}

func fieldMessage(label string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "phone":
		return label + " must be a valid phone number"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	default:
		return label + " is invalid"
	}
}

// ResumeUpload is a resume file received with a create or update request.
type ResumeUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// checkResume accepts PDFs up to MaxResumeBytes. The content is sniffed;
// a declared MIME type other than PDF is also rejected.
func checkResume(verr *domain.ValidationError, r *ResumeUpload) {
	switch {
	case len(r.Data) == 0:
		verr.Add("resume", "Resume file is empty")
	case len(r.Data) > MaxResumeBytes:
		verr.Add("resume", "Resume must be 5 MB or smaller")
	case !bytes.HasPrefix(r.Data, pdfMagic):
		verr.Add("resume", "Resume must be a PDF file")
	case !declaredPDF(r.MimeType):
		verr.Add("resume", "Resume must be a PDF file")
	}
}

func declaredPDF(mimeType string) bool {
	if mimeType == "" || mimeType == "application/octet-stream" {
		return true
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	return err == nil && mt == pdfMimeType
}

// resumeFilename keeps the base name only and guarantees a .pdf suffix.
func resumeFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "resume.pdf"
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
