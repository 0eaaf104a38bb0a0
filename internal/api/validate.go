package api

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationMessage flattens validator errors into "field: rule" pairs.
func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err.Error()
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		p := fe.Namespace() + ": " + fe.Tag()
		if fe.Param() != "" {
			p += "=" + fe.Param()
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validateCreateOrders(req *model.CreateOrdersRequest, area geo.Bounds) error {
	if err := validate.Struct(req); err != nil {
		return errors.New(validationMessage(err))
	}
	seen := map[string]struct{}{}
	for i, o := range req.Orders {
		if !finite(o.Weight, o.Location.X, o.Location.Y) {
			return fmt.Errorf("orders[%d]: non-finite value", i)
		}
		if !area.Contains(o.Location) {
			return fmt.Errorf("orders[%d]: location (%g,%g) outside service area", i, o.Location.X, o.Location.Y)
		}
		if o.ID != "" {
			if _, dup := seen[o.ID]; dup {
				return fmt.Errorf("orders[%d]: duplicate id %q", i, o.ID)
			}
			seen[o.ID] = struct{}{}
		}
	}
	return nil
}

func validateCreateVehicles(req *model.CreateVehiclesRequest, area geo.Bounds) error {
	if err := validate.Struct(req); err != nil {
		return errors.New(validationMessage(err))
	}
	seen := map[string]struct{}{}
	for i, v := range req.Vehicles {
		if !finite(v.Capacity, v.Range, v.CurrentLoad) {
			return fmt.Errorf("vehicles[%d]: non-finite value", i)
		}
		if v.CurrentLoad > v.Capacity {
			return fmt.Errorf("vehicles[%d]: currentLoad exceeds capacity", i)
		}
		if v.Position != nil && !area.Contains(*v.Position) {
			return fmt.Errorf("vehicles[%d]: position outside service area", i)
		}
		if v.ID != "" {
			if _, dup := seen[v.ID]; dup {
				return fmt.Errorf("vehicles[%d]: duplicate id %q", i, v.ID)
			}
			seen[v.ID] = struct{}{}
		}
	}
	return nil
}

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if err := validate.Struct(req); err != nil {
		return errors.New(validationMessage(err))
	}
	if req.MaxDistance != nil && !finite(*req.MaxDistance) {
		return fmt.Errorf("maxDistance must be finite")
	}
	return nil
}
