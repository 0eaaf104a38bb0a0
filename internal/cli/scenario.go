package cli

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/jaswdr/faker"
	"gopkg.in/yaml.v3"

	"dronedispatch/internal/geo"
	"dronedispatch/internal/model"
	"dronedispatch/internal/opt"
)

// Scenario is a self-contained dispatch problem kept in YAML.
type Scenario struct {
	Name        string            `yaml:"name,omitempty"`
	Seed        *int64            `yaml:"seed,omitempty"`
	Strategy    string            `yaml:"strategy,omitempty"`
	MaxDistance float64           `yaml:"maxDistance,omitempty"`
	Now         *time.Time        `yaml:"now,omitempty"`
	Orders      []model.OrderIn   `yaml:"orders"`
	Vehicles    []model.VehicleIn `yaml:"vehicles"`
}

func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &sc, nil
}

func (sc *Scenario) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clock returns the scenario's reference time, or now when unset.
func (sc *Scenario) Clock() time.Time {
	if sc.Now != nil {
		return sc.Now.UTC()
	}
	return time.Now().UTC()
}

// Build turns the scenario into engine inputs. Missing ids are numbered,
// missing vehicle positions start at the depot with a full battery.
func (sc *Scenario) Build(cfg opt.Config) ([]*model.Order, []*model.Vehicle, error) {
	now := sc.Clock()
	orders := make([]*model.Order, 0, len(sc.Orders))
	for i, in := range sc.Orders {
		prio, ok := model.ParsePriority(string(in.Priority))
		if !ok {
			return nil, nil, fmt.Errorf("orders[%d]: unknown priority %q", i, in.Priority)
		}
		if in.Weight <= 0 {
			return nil, nil, fmt.Errorf("orders[%d]: weight must be positive", i)
		}
		o := &model.Order{
			ID:        in.ID,
			Location:  in.Location,
			Weight:    in.Weight,
			Priority:  prio,
			Status:    model.OrderPending,
			CreatedAt: now,
			Customer:  in.Customer,
		}
		if o.ID == "" {
			o.ID = fmt.Sprintf("order-%d", i+1)
		}
		if in.CreatedAt != nil {
			o.CreatedAt = in.CreatedAt.UTC()
		}
		orders = append(orders, o)
	}
	vehicles := make([]*model.Vehicle, 0, len(sc.Vehicles))
	for i, in := range sc.Vehicles {
		if in.Capacity <= 0 || in.Range <= 0 {
			return nil, nil, fmt.Errorf("vehicles[%d]: capacity and range must be positive", i)
		}
		v := &model.Vehicle{
			ID:             in.ID,
			Name:           in.Name,
			Capacity:       in.Capacity,
			Range:          in.Range,
			CurrentLoad:    in.CurrentLoad,
			BatteryPct:     100,
			Position:       cfg.Depot,
			Status:         model.VehicleIdle,
			AssignedOrders: []string{},
		}
		if v.ID == "" {
			v.ID = fmt.Sprintf("drone-%d", i+1)
		}
		if in.BatteryPct != nil {
			v.BatteryPct = *in.BatteryPct
		}
		if in.Position != nil {
			v.Position = *in.Position
		}
		vehicles = append(vehicles, v)
	}
	return orders, vehicles, nil
}

// Generate makes a reproducible random scenario inside the service area.
func Generate(seed int64, nOrders, nVehicles int, cfg opt.Config) *Scenario {
	fake := faker.NewWithSeed(rand.NewSource(seed))
	b := cfg.Bounds
	coord := func(lo, hi float64) float64 {
		v := fake.Float64(2, int(math.Ceil(lo)), int(math.Floor(hi)))
		return math.Min(math.Max(v, lo), hi)
	}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	prios := []string{string(model.PriorityHigh), string(model.PriorityMedium), string(model.PriorityMedium), string(model.PriorityLow)}

	sc := &Scenario{Name: fmt.Sprintf("generated-%d", seed), Seed: &seed, Now: &now}
	for i := 0; i < nOrders; i++ {
		created := now.Add(-time.Duration(fake.IntBetween(0, 90)) * time.Minute)
		sc.Orders = append(sc.Orders, model.OrderIn{
			ID:        fmt.Sprintf("o%03d", i+1),
			Location:  geo.Point{X: coord(b.MinX, b.MaxX), Y: coord(b.MinY, b.MaxY)},
			Weight:    0.5 + fake.Float64(1, 0, 3),
			Priority:  model.Priority(fake.RandomStringElement(prios)),
			CreatedAt: &created,
			Customer:  fake.Person().Name(),
		})
	}
	for i := 0; i < nVehicles; i++ {
		battery := float64(fake.IntBetween(60, 100))
		sc.Vehicles = append(sc.Vehicles, model.VehicleIn{
			ID:         fmt.Sprintf("d%02d", i+1),
			Name:       fmt.Sprintf("%s-%d", fake.Lorem().Word(), i+1),
			Capacity:   float64(fake.IntBetween(4, 10)),
			Range:      float64(fake.IntBetween(15, 35)),
			BatteryPct: &battery,
		})
	}
	return sc
}
