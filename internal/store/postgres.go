package store

import (
    "context"
    "database/sql"
    _ "embed"
    "encoding/json"
    "errors"
    "fmt"
    "math"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "dronedispatch/internal/geo"
    "dronedispatch/internal/model"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
        return fmt.Errorf("migrate: %w", err)
    }
    return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

const orderCols = `id, x, y, weight, priority, status, customer, assigned_vehicle, created_at`

const vehicleCols = `id, name, capacity, range_units, current_load, battery_pct, x, y, status, assigned_orders, route, route_distance, total_distance, deliveries`

type scanner interface{ Scan(dest ...any) error }

func scanOrder(row scanner) (model.Order, error) {
    var o model.Order
    var customer, assigned sql.NullString
    err := row.Scan(&o.ID, &o.Location.X, &o.Location.Y, &o.Weight, &o.Priority, &o.Status, &customer, &assigned, &o.CreatedAt)
    o.Customer = customer.String
    o.AssignedVehicle = assigned.String
    return o, err
}

func scanVehicle(row scanner) (model.Vehicle, error) {
    var v model.Vehicle
    var name sql.NullString
    var ids, route []byte
    err := row.Scan(&v.ID, &name, &v.Capacity, &v.Range, &v.CurrentLoad, &v.BatteryPct, &v.Position.X, &v.Position.Y,
        &v.Status, &ids, &route, &v.RouteDistance, &v.TotalDistance, &v.Deliveries)
    if err != nil { return v, err }
    v.Name = name.String
    if v.AssignedOrders, err = decodeIDs(ids); err != nil { return v, err }
    v.Route, err = decodeRoute(route)
    return v, err
}

func (p *Postgres) CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func(){ _ = tx.Rollback() }()

    now := time.Now().UTC()
    out := make([]model.Order, 0, len(orders))
    for _, o := range orders {
        if o.ID == "" { o.ID = uuid.New().String() }
        if o.CreatedAt.IsZero() { o.CreatedAt = now }
        o.Status = model.OrderPending
        o.AssignedVehicle = ""
        _, err = tx.ExecContext(ctx, `INSERT INTO orders (id, x, y, weight, priority, status, customer, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
            o.ID, o.Location.X, o.Location.Y, o.Weight, o.Priority, o.Status, nullIfEmpty(o.Customer), o.CreatedAt)
        if err != nil { return nil, fmt.Errorf("insert order %s: %w", o.ID, err) }
        out = append(out, o)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
    o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
    limit = clampLimit(limit)
    rows, err := p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders
        WHERE ($1 = '' OR status = $1)
          AND ($2 = '' OR seq > (SELECT seq FROM orders WHERE id = $2))
        ORDER BY seq LIMIT $3`, status, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Order{}
    var last string
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, "", err }
        out = append(out, o)
        last = o.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    var next string
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) (model.Order, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Order{}, err }
    defer func(){ _ = tx.Rollback() }()

    o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    if err != nil { return model.Order{}, err }
    if !o.Status.CanTransition(status) || status == model.OrderAssigned {
        return o, fmt.Errorf("order %s %s -> %s: %w", id, o.Status, status, ErrInvalidTransition)
    }
    if status == model.OrderCancelled && o.AssignedVehicle != "" {
        v, err := scanVehicle(tx.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id=$1 FOR UPDATE`, o.AssignedVehicle))
        if err != nil && !errors.Is(err, sql.ErrNoRows) { return o, err }
        if err == nil {
            v.AssignedOrders = removeID(v.AssignedOrders, id)
            v.CurrentLoad = math.Max(0, v.CurrentLoad-o.Weight)
            v.Route = dropStop(v.Route, id)
            v.RouteDistance = geo.PathLength(model.Points(v.Route))
            if len(v.AssignedOrders) == 0 && v.Status == model.VehicleLoading {
                v.Status = model.VehicleIdle
                v.Route = nil
                v.RouteDistance = 0
            }
            if err := updateVehicle(ctx, tx, v); err != nil { return o, err }
        }
        o.AssignedVehicle = ""
    }
    o.Status = status
    if _, err := tx.ExecContext(ctx, `UPDATE orders SET status=$2, assigned_vehicle=$3 WHERE id=$1`, o.ID, o.Status, nullIfEmpty(o.AssignedVehicle)); err != nil {
        return o, err
    }
    return o, tx.Commit()
}

func (p *Postgres) CreateVehicles(ctx context.Context, vehicles []model.Vehicle) ([]model.Vehicle, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func(){ _ = tx.Rollback() }()

    out := make([]model.Vehicle, 0, len(vehicles))
    for _, v := range vehicles {
        if v.ID == "" { v.ID = uuid.New().String() }
        if v.Status == "" { v.Status = model.VehicleIdle }
        if v.AssignedOrders == nil { v.AssignedOrders = []string{} }
        ids, route, err := encodePlan(v)
        if err != nil { return nil, err }
        _, err = tx.ExecContext(ctx, `INSERT INTO vehicles (`+vehicleCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
            v.ID, nullIfEmpty(v.Name), v.Capacity, v.Range, v.CurrentLoad, v.BatteryPct, v.Position.X, v.Position.Y,
            v.Status, ids, route, v.RouteDistance, v.TotalDistance, v.Deliveries)
        if err != nil { return nil, fmt.Errorf("insert vehicle %s: %w", v.ID, err) }
        out = append(out, v)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

func (p *Postgres) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
    v, err := scanVehicle(p.db.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Vehicle{}, ErrNotFound }
    return v, err
}

func (p *Postgres) ListVehicles(ctx context.Context, status, cursor string, limit int) ([]model.Vehicle, string, error) {
    limit = clampLimit(limit)
    rows, err := p.db.QueryContext(ctx, `SELECT `+vehicleCols+` FROM vehicles
        WHERE ($1 = '' OR status = $1)
          AND ($2 = '' OR seq > (SELECT seq FROM vehicles WHERE id = $2))
        ORDER BY seq LIMIT $3`, status, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Vehicle{}
    var last string
    for rows.Next() {
        v, err := scanVehicle(rows)
        if err != nil { return nil, "", err }
        out = append(out, v)
        last = v.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    var next string
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) CompleteTrip(ctx context.Context, vehicleID string, batteryUsed func(float64) float64) (model.Vehicle, []string, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Vehicle{}, nil, err }
    defer func(){ _ = tx.Rollback() }()

    v, err := scanVehicle(tx.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id=$1 FOR UPDATE`, vehicleID))
    if errors.Is(err, sql.ErrNoRows) { return model.Vehicle{}, nil, ErrNotFound }
    if err != nil { return model.Vehicle{}, nil, err }
    if v.Status == model.VehicleIdle {
        return v, nil, fmt.Errorf("vehicle %s has no trip in progress: %w", vehicleID, ErrInvalidTransition)
    }
    delivered := []string{}
    if len(v.AssignedOrders) > 0 {
        rows, err := tx.QueryContext(ctx, `UPDATE orders SET status='delivered'
            WHERE assigned_vehicle=$1 AND id = ANY($2) AND status IN ('assigned','delivered')
            RETURNING id`, vehicleID, v.AssignedOrders)
        if err != nil { return v, nil, err }
        ids, err := collectRows(rows, func(row scanner) (string, error) {
            var id string
            err := row.Scan(&id)
            return id, err
        })
        if err != nil { return v, nil, fmt.Errorf("deliver orders of %s: %w", vehicleID, err) }
        for _, id := range ids { delivered = append(delivered, *id) }
    }
    finishTrip(&v, len(delivered), batteryUsed)
    if err := updateVehicle(ctx, tx, v); err != nil { return v, nil, err }
    return v, delivered, tx.Commit()
}

// Dispatch locks every pending order and idle vehicle row for the duration of fn.
func (p *Postgres) Dispatch(ctx context.Context, fn DispatchFunc) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()

    orows, err := tx.QueryContext(ctx, `SELECT `+orderCols+` FROM orders WHERE status='pending' ORDER BY seq FOR UPDATE`)
    if err != nil { return fmt.Errorf("load pending orders: %w", err) }
    orders, err := collectRows(orows, scanOrder)
    if err != nil { return fmt.Errorf("load pending orders: %w", err) }

    vrows, err := tx.QueryContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE status='idle' ORDER BY seq FOR UPDATE`)
    if err != nil { return fmt.Errorf("load idle vehicles: %w", err) }
    vehicles, err := collectRows(vrows, scanVehicle)
    if err != nil { return fmt.Errorf("load idle vehicles: %w", err) }

    if err := fn(orders, vehicles); err != nil { return err }

    for _, o := range orders {
        if o.Status == model.OrderPending { continue }
        if _, err := tx.ExecContext(ctx, `UPDATE orders SET status=$2, assigned_vehicle=$3 WHERE id=$1`, o.ID, o.Status, nullIfEmpty(o.AssignedVehicle)); err != nil {
            return fmt.Errorf("update order %s: %w", o.ID, err)
        }
    }
    for _, v := range vehicles {
        if v.Status == model.VehicleIdle { continue }
        if err := updateVehicle(ctx, tx, *v); err != nil { return err }
    }
    return tx.Commit()
}

type rowIterator interface {
    scanner
    Next() bool
    Err() error
    Close() error
}

// collectRows drains rows and closes them. An iteration error discards
// everything read so far.
func collectRows[T any](rows rowIterator, scan func(scanner) (T, error)) ([]*T, error) {
    defer rows.Close()
    var out []*T
    for rows.Next() {
        it, err := scan(rows)
        if err != nil { return nil, err }
        out = append(out, &it)
    }
    if err := rows.Err(); err != nil { return nil, err }
    return out, nil
}

func updateVehicle(ctx context.Context, tx *sql.Tx, v model.Vehicle) error {
    ids, route, err := encodePlan(v)
    if err != nil { return err }
    _, err = tx.ExecContext(ctx, `UPDATE vehicles SET current_load=$2, battery_pct=$3, x=$4, y=$5, status=$6,
        assigned_orders=$7, route=$8, route_distance=$9, total_distance=$10, deliveries=$11 WHERE id=$1`,
        v.ID, v.CurrentLoad, v.BatteryPct, v.Position.X, v.Position.Y, v.Status, ids, route, v.RouteDistance, v.TotalDistance, v.Deliveries)
    if err != nil { return fmt.Errorf("update vehicle %s: %w", v.ID, err) }
    return nil
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, m model.PlanMetrics) error {
    if m.ID == "" { m.ID = uuid.New().String() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO plan_metrics (id, strategy, ran_at, orders, vehicles, assigned, unassigned, rejected, efficiency, total_distance, duration_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
        m.ID, m.Strategy, m.RanAt, m.Orders, m.Vehicles, m.Assigned, m.Unassigned, m.Rejected, m.Efficiency, m.TotalDistance, m.DurationMs)
    return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, strategy string, limit int) ([]model.PlanMetrics, error) {
    limit = clampLimit(limit)
    rows, err := p.db.QueryContext(ctx, `SELECT id, strategy, ran_at, orders, vehicles, assigned, unassigned, rejected, efficiency, total_distance, duration_ms
        FROM plan_metrics WHERE ($1 = '' OR strategy = $1) ORDER BY ran_at DESC LIMIT $2`, strategy, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.PlanMetrics{}
    for rows.Next() {
        var m model.PlanMetrics
        if err := rows.Scan(&m.ID, &m.Strategy, &m.RanAt, &m.Orders, &m.Vehicles, &m.Assigned, &m.Unassigned, &m.Rejected, &m.Efficiency, &m.TotalDistance, &m.DurationMs); err != nil {
            return nil, err
        }
        out = append(out, m)
    }
    return out, rows.Err()
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func encodePlan(v model.Vehicle) (ids, route []byte, err error) {
    if v.AssignedOrders == nil { v.AssignedOrders = []string{} }
    if v.Route == nil { v.Route = []model.RouteStop{} }
    if ids, err = json.Marshal(v.AssignedOrders); err != nil { return nil, nil, err }
    if route, err = json.Marshal(v.Route); err != nil { return nil, nil, err }
    return ids, route, nil
}

func decodeIDs(b []byte) ([]string, error) {
    out := []string{}
    if len(b) == 0 { return out, nil }
    if err := json.Unmarshal(b, &out); err != nil { return nil, fmt.Errorf("decode assigned orders: %w", err) }
    return out, nil
}

func decodeRoute(b []byte) ([]model.RouteStop, error) {
    var out []model.RouteStop
    if len(b) == 0 { return nil, nil }
    if err := json.Unmarshal(b, &out); err != nil { return nil, fmt.Errorf("decode route: %w", err) }
    if len(out) == 0 { return nil, nil }
    return out, nil
}
