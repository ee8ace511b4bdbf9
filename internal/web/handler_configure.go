package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"

	"github.com/vbonduro/bannerfront/internal/configurator"
	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/pricing"
	"github.com/vbonduro/bannerfront/internal/session"
)

// multipartOverhead is allowed on top of the artwork limit for the rest of
// the multipart body.
const multipartOverhead = 1 << 20

// quoteView is what the quote partial renders.
type quoteView struct {
	Invalid  bool
	Price    decimal.Decimal
	Estimate bool
	Tier     string
}

func estimateView(cfg domain.BannerConfig) *quoteView {
	if cfg.Validate() != nil {
		return &quoteView{Invalid: true}
	}
	return &quoteView{Price: pricing.Estimate(cfg), Estimate: true, Tier: pricing.TierFor(cfg.AreaSqm()).Name}
}

func (s *Server) configureData(snap configurator.Snapshot, errs map[string]string) map[string]any {
	if errs == nil {
		errs = map[string]string{}
	}
	return map[string]any{
		"ActiveNav":  "configure",
		"Title":      "Design a banner",
		"Flow":       snap,
		"Errors":     errs,
		"Presets":    domain.PresetSizes,
		"Materials":  domain.Materials,
		"CustomSize": domain.CustomSizeName,
		"SizeName":   domain.PresetFor(snap.Config.WidthCm, snap.Config.HeightCm),
		"MinCm":      domain.MinDimensionCm,
		"MaxCm":      domain.MaxDimensionCm,
		"Grommets":   pricing.GrommetsSurcharge,
		"Lamination": pricing.LaminationSurcharge,
		"Tiers":      pricing.Tiers(),
		"MaxUpload":  s.maxUpload,
		"Quote":      estimateView(snap.Config),
	}
}

func (s *Server) handleConfigurePage(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	q := r.URL.Query()
	switch {
	case q.Get("edit") != "":
		if err := st.Flow.Edit(q.Get("edit")); err != nil {
			st.Toasts.Error("Cannot edit banner", "That item is no longer in your cart.")
			st.Flow.Start()
		}
	case q.Get("new") != "":
		st.Flow.Start()
	}
	if st.Flow.Snapshot().State == configurator.Committed {
		st.Flow.Start()
	}

	if err := s.renderPage(w, r, http.StatusOK, s.configureData(st.Flow.Snapshot(), nil),
		"pages/configure.html", "partials/configurator.html", "partials/quote.html",
	); err != nil {
		s.logger.Error("render page error", "page", "configure", "error", err)
	}
}

// renderStep re-renders the configurator after a step transition: the
// fragment for HTMX, otherwise a redirect back to the page.
func (s *Server) renderStep(w http.ResponseWriter, r *http.Request, snap configurator.Snapshot, errs map[string]string) {
	if !isHTMX(r) {
		if len(errs) > 0 {
			if err := s.renderPage(w, r, http.StatusUnprocessableEntity, s.configureData(snap, errs),
				"pages/configure.html", "partials/configurator.html", "partials/quote.html",
			); err != nil {
				s.logger.Error("render page error", "page", "configure", "error", err)
			}
			return
		}
		http.Redirect(w, r, "/configure", http.StatusSeeOther)
		return
	}
	if err := s.renderPartial(w, r, "configurator_step", s.configureData(snap, errs),
		"partials/configurator.html", "partials/quote.html",
	); err != nil {
		s.logger.Error("render partial error", "partial", "configurator_step", "error", err)
	}
}

func (s *Server) handleSubmitConfig(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	cfg, err := parseConfigForm(r)
	if err == nil {
		err = st.Flow.SubmitConfig(cfg)
	}
	if err != nil {
		snap := st.Flow.Snapshot()
		if errors.Is(err, configurator.ErrInvalidTransition) {
			st.Toasts.Warning("Already configured", "Upload your artwork or go back to change the banner.")
			s.renderStep(w, r, snap, nil)
			return
		}
		fields, _ := fieldErrors(err)
		if verr := cfg.Validate(); verr != nil {
			more, _ := fieldErrors(verr)
			for k, v := range more {
				if _, seen := fields[k]; !seen {
					fields[k] = v
				}
			}
		}
		snap.Config = cfg
		s.renderStep(w, r, snap, fields)
		return
	}
	s.renderStep(w, r, st.Flow.Snapshot(), nil)
}

func (s *Server) handleConfigureBack(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	if err := st.Flow.Back(); err != nil {
		s.logger.Debug("configurator back ignored", "visitor", st.VisitorID, "error", err)
	}
	s.renderStep(w, r, st.Flow.Snapshot(), nil)
}

func (s *Server) handleUploadArtwork(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		msg := "Could not read the upload. Please try again."
		if errors.As(err, &tooBig) {
			msg = fmt.Sprintf("File size must be less than %s", humanize.IBytes(uint64(s.maxUpload)))
		}
		s.renderStep(w, r, st.Flow.Snapshot(), map[string]string{"file": msg})
		return
	}

	file, header, err := r.FormFile("artwork")
	if err != nil {
		s.renderStep(w, r, st.Flow.Snapshot(), map[string]string{"file": "Please choose a file to upload"})
		return
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			s.logger.Error("failed to close upload", "error", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		s.renderStep(w, r, st.Flow.Snapshot(), map[string]string{"file": "Could not read the upload. Please try again."})
		return
	}

	editing := st.Flow.Snapshot().Editing()
	item, err := st.Flow.SelectFile(r.Context(), header.Filename, data)
	if err != nil {
		s.uploadFailed(w, r, st, err)
		return
	}
	s.logger.Info("artwork uploaded", "visitor", st.VisitorID, "item_id", item.ID, "bytes", len(data))
	s.committed(w, r, st, editing)
}

func (s *Server) handleKeepFile(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	editing := st.Flow.Snapshot().Editing()
	if _, err := st.Flow.KeepFile(r.Context()); err != nil {
		s.uploadFailed(w, r, st, err)
		return
	}
	s.committed(w, r, st, editing)
}

func (s *Server) uploadFailed(w http.ResponseWriter, r *http.Request, st *session.State, err error) {
	if fields, ok := fieldErrors(err); ok {
		s.renderStep(w, r, st.Flow.Snapshot(), fields)
		return
	}
	switch {
	case errors.Is(err, configurator.ErrInvalidTransition):
		st.Toasts.Warning("Configure first", "Choose your banner options before uploading.")
	case errors.Is(err, configurator.ErrNoFile):
		st.Toasts.Warning("No file", "Please upload your artwork.")
	default:
		s.logger.Error("artwork upload failed", "visitor", st.VisitorID, "error", err)
		st.Toasts.Error("Upload failed", "Something went wrong. Please try again.")
	}
	s.renderStep(w, r, st.Flow.Snapshot(), nil)
}

func (s *Server) committed(w http.ResponseWriter, r *http.Request, st *session.State, editing bool) {
	if editing {
		st.Toasts.Success("Cart updated", "Your banner has been updated.")
	} else {
		st.Toasts.Success("Added to cart", "Your banner is in the cart.")
	}
	st.Flow.Start()
	redirect(w, r, "/cart")
}

// handleQuote prices the configuration currently in the form. Only the most
// recent quote request of a visitor is answered; superseded ones get 204 so
// HTMX leaves the page alone.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	st := visitorFrom(r)
	cfg, err := parseConfigForm(r)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		s.renderQuote(w, r, &quoteView{Invalid: true})
		return
	}

	ctx, seq, done := st.Quotes.Begin(r.Context())
	defer done()
	q, err := s.quoter.Quote(ctx, cfg)
	if err != nil || !st.Quotes.Current(seq) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.renderQuote(w, r, &quoteView{
		Price:    q.Price,
		Estimate: q.Estimate,
		Tier:     pricing.TierFor(cfg.AreaSqm()).Name,
	})
}

func (s *Server) renderQuote(w http.ResponseWriter, r *http.Request, v *quoteView) {
	if err := s.renderPartial(w, r, "quote", v, "partials/quote.html"); err != nil {
		s.logger.Error("render partial error", "partial", "quote", "error", err)
	}
}

// parseConfigForm reads the configurator form. A preset size overrides the
// width and height fields. Unparseable numbers are reported as field errors
// alongside the partially filled configuration.
func parseConfigForm(r *http.Request) (domain.BannerConfig, error) {
	cfg := domain.BannerConfig{
		Material:   domain.Material(r.FormValue("material")),
		Grommets:   formBool(r.FormValue("grommets")),
		Lamination: formBool(r.FormValue("lamination")),
	}
	if p, ok := domain.LookupPreset(r.FormValue("size")); ok {
		cfg.WidthCm, cfg.HeightCm = p.WidthCm, p.HeightCm
		return cfg, nil
	}

	var result *multierror.Error
	w, err := strconv.Atoi(strings.TrimSpace(r.FormValue("width")))
	if err != nil {
		result = multierror.Append(result, &domain.ValidationError{Field: "width", Message: "Width must be a whole number of centimetres"})
	}
	h, err := strconv.Atoi(strings.TrimSpace(r.FormValue("height")))
	if err != nil {
		result = multierror.Append(result, &domain.ValidationError{Field: "height", Message: "Height must be a whole number of centimetres"})
	}
	cfg.WidthCm, cfg.HeightCm = w, h
	return cfg, result.ErrorOrNil()
}

func formBool(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
