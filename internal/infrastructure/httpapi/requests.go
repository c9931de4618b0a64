package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"HypothesisValidator/internal/domain"
)

type validateRequest struct {
	Hypothesis string `json:"hypothesis" validate:"required,max=2000"`
	ArticleURL string `json:"article_url" validate:"required,max=2048"`
}

type validateArticleRequest struct {
	Hypothesis string `json:"hypothesis" validate:"required,max=2000"`
	ArticleID  string `json:"article_id" validate:"required,max=64"`
}

type uploadRequest struct {
	ArticleURLs []string `json:"article_urls" validate:"required,max=1000,dive,max=2048"`
}

type createHypothesisRequest struct {
	Hypothesis     string `json:"hypothesis" validate:"required,max=2000"`
	ArticlesAmount int    `json:"articles_amount" validate:"gte=0"`
}

type verdictBody struct {
	Relevancy float64 `json:"relevancy"`
	KeyTake   string  `json:"key_take"`
	Validity  float64 `json:"validity"`
}

type validateResponse struct {
	Result verdictBody `json:"result"`
}

type uploadResponse struct {
	Uploaded   int      `json:"uploaded_articles_amount"`
	Failed     int      `json:"failed_articles_amount"`
	FailedURLs []string `json:"failed_articles"`
}

type articleVerdictBody struct {
	Article string `json:"article"`
	verdictBody
}

type createHypothesisResponse struct {
	Results    []articleVerdictBody `json:"validation_results"`
	Failed     int                  `json:"failed_articles_amount"`
	FailedURLs []string             `json:"failed_articles"`
}

func newVerdictBody(v domain.Verdict) verdictBody {
	return verdictBody{Relevancy: v.Relevancy, KeyTake: v.KeyTake, Validity: v.Validity}
}

func newUploadResponse(r domain.UploadReport) uploadResponse {
	failed := r.FailedURLs
	if failed == nil {
		failed = []string{}
	}
	return uploadResponse{Uploaded: r.Uploaded, Failed: r.Failed, FailedURLs: failed}
}

func newCreateHypothesisResponse(r domain.HypothesisReport) createHypothesisResponse {
	resp := createHypothesisResponse{
		Results:    make([]articleVerdictBody, 0, len(r.Results)),
		Failed:     r.Failed,
		FailedURLs: r.FailedURLs,
	}
	if resp.FailedURLs == nil {
		resp.FailedURLs = []string{}
	}
	for _, av := range r.Results {
		resp.Results = append(resp.Results, articleVerdictBody{Article: av.ArticleURL, verdictBody: newVerdictBody(av.Verdict)})
	}
	return resp
}

type researchBody struct {
	ID            int64  `json:"id"`
	PrimaryItem   string `json:"primary_item"`
	SecondaryItem string `json:"secondary_item"`
}

type researchListResponse struct {
	Researches []researchBody `json:"researches"`
}

type entityTypeBody struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type entityTypeListResponse struct {
	EntityTypes []entityTypeBody `json:"entity_types"`
}

func newResearchListResponse(researches []domain.Research) researchListResponse {
	resp := researchListResponse{Researches: make([]researchBody, 0, len(researches))}
	for _, r := range researches {
		resp.Researches = append(resp.Researches, researchBody{ID: r.ID, PrimaryItem: r.PrimaryItem, SecondaryItem: r.SecondaryItem})
	}
	return resp
}

func newEntityTypeListResponse(types []domain.EntityType) entityTypeListResponse {
	resp := entityTypeListResponse{EntityTypes: make([]entityTypeBody, 0, len(types))}
	for _, t := range types {
		resp.EntityTypes = append(resp.EntityTypes, entityTypeBody{ID: t.ID, Name: t.Name})
	}
	return resp
}

// decoder reads JSON request bodies and checks their validate tags.
type decoder struct {
	validate *validator.Validate
	maxBytes int64
}

func newDecoder(maxBytes int64) *decoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &decoder{validate: v, maxBytes: maxBytes}
}

func (d *decoder) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, d.maxBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("decode request: %w", errUploadTooLarge)
		case errors.Is(err, io.EOF):
			return domain.Invalid("request body is empty")
		default:
			return domain.Invalid("malformed JSON: %v", err)
		}
	}
	if err := d.validate.Struct(dst); err != nil {
		return domain.Invalid("%s", describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
