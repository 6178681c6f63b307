package http

import (
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/pump-status-service/internal/domain"
)

// validate is shared by all request types; validator caches struct metadata.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// criteriaQuery is the query-string form of domain.Criteria.
type criteriaQuery struct {
	WaterQuality     string `validate:"omitempty,max=64"`
	Region           string `validate:"omitempty,max=64"`
	StatusGroup      string `validate:"omitempty,oneof='functional' 'functional needs repair' 'non functional'"`
	Source           string `validate:"omitempty,max=64"`
	ConstructionYear *int   `validate:"omitempty,gte=0"`
	MinAge           *int   `validate:"omitempty,gte=0"`
	MaxAge           *int   `validate:"omitempty,gte=0"`
}

// parseCriteria reads filter criteria from query parameters.
func parseCriteria(q url.Values, referenceYear int) (domain.Criteria, error) {
	cq := criteriaQuery{
		WaterQuality: q.Get("water_quality"),
		Region:       q.Get("region"),
		StatusGroup:  q.Get("status_group"),
		Source:       q.Get("source"),
	}

	var err error
	if cq.ConstructionYear, err = queryInt(q, "construction_year"); err != nil {
		return domain.Criteria{}, err
	}
	if cq.MinAge, err = queryInt(q, "min_age"); err != nil {
		return domain.Criteria{}, err
	}
	if cq.MaxAge, err = queryInt(q, "max_age"); err != nil {
		return domain.Criteria{}, err
	}
	if err := validate.Struct(cq); err != nil {
		return domain.Criteria{}, err
	}

	c := domain.Criteria{
		WaterQuality:     cq.WaterQuality,
		Region:           cq.Region,
		StatusGroup:      domain.StatusGroup(cq.StatusGroup),
		Source:           cq.Source,
		ConstructionYear: cq.ConstructionYear,
		ReferenceYear:    referenceYear,
	}
	if cq.MinAge != nil || cq.MaxAge != nil {
		age := domain.AgeRange{Min: 0, Max: math.MaxInt}
		if cq.MinAge != nil {
			age.Min = *cq.MinAge
		}
		if cq.MaxAge != nil {
			age.Max = *cq.MaxAge
		}
		if age.Min > age.Max {
			return domain.Criteria{}, &domain.ValidationError{Field: "min_age", Value: age.Min, Reason: "greater than max_age"}
		}
		c.WellAge = &age
	}
	return c, nil
}

func queryInt(q url.Values, name string) (*int, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, &domain.ValidationError{Field: name, Value: s, Reason: "not an integer"}
	}
	return &n, nil
}

// predictRequest carries raw records to predict.
type predictRequest struct {
	Records []domain.RawInput `json:"records" validate:"required,min=1"`
}

// predictByIDRequest names stored pumps to predict.
type predictByIDRequest struct {
	PumpIDs []string `json:"pump_ids" validate:"required,min=1,dive,required"`
}

// checkBatchSize enforces the configured per-request row limit.
func checkBatchSize(n, limit int) error {
	if err := validate.Var(n, fmt.Sprintf("lte=%d", limit)); err != nil {
		return &domain.ValidationError{Field: "records", Value: n, Reason: fmt.Sprintf("batch exceeds %d rows", limit)}
	}
	return nil
}
