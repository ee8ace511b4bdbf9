package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"

	"github.com/vbonduro/bannerfront/internal/domain"
)

// renderPage parses and executes a full-page template set. Layout data shared
// by every page (signed-in user, cart badge, pending toasts) is added here.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, data map[string]any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates,
		append([]string{"base.html", "partials/toasts.html"}, files...)...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}

	st := visitorFrom(r)
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = map[string]string{}
	}
	if _, ok := data["ActiveNav"]; !ok {
		data["ActiveNav"] = ""
	}
	data["User"] = (*domain.User)(nil)
	if u, ok := st.Auth.User(); ok {
		data["User"] = &u
	}
	data["CartCount"] = st.Cart.ItemCount()
	data["Toasts"] = st.Toasts.Drain()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

// renderPartial executes the named {{define}} block from files. Toasts queued
// while handling an HTMX request ride along as an out-of-band swap.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates,
		append([]string{"partials/toasts.html"}, files...)...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}

	var buf bytes.Buffer
	if name != "" {
		if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
			http.Error(w, "template error", http.StatusInternalServerError)
			return err
		}
	}
	if toasts := visitorFrom(r).Toasts.Drain(); len(toasts) > 0 {
		if err := tmpl.ExecuteTemplate(&buf, "oob_toasts", toasts); err != nil {
			http.Error(w, "template error", http.StatusInternalServerError)
			return err
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

// renderToasts answers an HTMX request with nothing but pending toasts.
func (s *Server) renderToasts(w http.ResponseWriter, r *http.Request) error {
	return s.renderPartial(w, r, "", nil)
}

// fieldErrors flattens validation failures into field -> message. The first
// message for a field wins. ok is false if err carries no field errors.
func fieldErrors(err error) (map[string]string, bool) {
	out := make(map[string]string)
	errs := []error{err}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	}
	for _, e := range errs {
		var ve *domain.ValidationError
		if errors.As(e, &ve) {
			if _, seen := out[ve.Field]; !seen {
				out[ve.Field] = ve.Message
			}
		}
	}
	return out, len(out) > 0
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":        money,
		"describe":     describe,
		"materialName": materialName,
		"capitalize":   capitalize,
		"shortID":      shortID,
		"inc":          func(i int) int { return i + 1 },
		"bytes":        func(n int64) string { return humanize.IBytes(uint64(n)) },
		"ago": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return humanize.Time(t)
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("02 Jan 2006, 15:04")
		},
	}
}

// money formats an amount in rupees with two decimals.
func money(v any) string {
	var d decimal.Decimal
	switch x := v.(type) {
	case decimal.Decimal:
		d = x
	case string:
		parsed, err := decimal.NewFromString(x)
		if err != nil {
			return x
		}
		d = parsed
	case int:
		d = decimal.NewFromInt(int64(x))
	default:
		return fmt.Sprint(v)
	}
	return "₹" + humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

func describe(cfg domain.BannerConfig) string {
	var b strings.Builder
	if name := domain.PresetFor(cfg.WidthCm, cfg.HeightCm); name != domain.CustomSizeName {
		fmt.Fprintf(&b, "%s (%d × %d cm)", name, cfg.WidthCm, cfg.HeightCm)
	} else {
		fmt.Fprintf(&b, "%d × %d cm", cfg.WidthCm, cfg.HeightCm)
	}
	b.WriteString(", ")
	b.WriteString(materialName(cfg.Material))
	if cfg.Grommets {
		b.WriteString(", grommets")
	}
	if cfg.Lamination {
		b.WriteString(", lamination")
	}
	return b.String()
}

func materialName(m domain.Material) string {
	for _, opt := range domain.Materials {
		if opt.Value == m {
			return opt.Name
		}
	}
	if m == "" {
		return "Vinyl"
	}
	return capitalize(m)
}

func capitalize(v any) string {
	s := fmt.Sprint(v)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
