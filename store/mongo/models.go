package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/id"
	"github.com/xraph/cloudbill/invoice"
	"github.com/xraph/cloudbill/types"
)

// Decimals are stored as strings to keep them exact.

// ==================== Catalog models ====================

type resourceModel struct {
	grove.BaseModel `grove:"table:cloudbill_resources"`

	ID           int64     `grove:"id,pk"          bson:"_id"`
	Position     int64     `grove:"position"       bson:"position"`
	Name         string    `grove:"name"           bson:"name"`
	Abbreviation string    `grove:"abbreviation"   bson:"abbreviation"`
	Metric       string    `grove:"metric"         bson:"metric"`
	Type         string    `grove:"type"           bson:"type"`
	ValuePerHour string    `grove:"value_per_hour" bson:"value_per_hour"`
	CreatedAt    time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"     bson:"updated_at"`
}

func toResourceModel(r *catalog.Resource) *resourceModel {
	return &resourceModel{
		ID:           r.ID,
		Name:         r.Name,
		Abbreviation: r.Abbreviation,
		Metric:       r.Metric,
		Type:         string(r.Type),
		ValuePerHour: r.ValuePerHour.String(),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromResourceModel(m *resourceModel) (*catalog.Resource, error) {
	value, err := decimal.NewFromString(m.ValuePerHour)
	if err != nil {
		return nil, fmt.Errorf("resource %d: value_per_hour: %w", m.ID, err)
	}
	return &catalog.Resource{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           m.ID,
		Name:         m.Name,
		Abbreviation: m.Abbreviation,
		Metric:       m.Metric,
		Type:         catalog.ResourceType(m.Type),
		ValuePerHour: value,
	}, nil
}

type categoryModel struct {
	grove.BaseModel `grove:"table:cloudbill_categories"`

	ID             int64                `grove:"id,pk"          bson:"_id"`
	Position       int64                `grove:"position"       bson:"position"`
	Name           string               `grove:"name"           bson:"name"`
	Description    string               `grove:"description"    bson:"description"`
	Workload       string               `grove:"workload"       bson:"workload"`
	Configurations []configurationModel `grove:"configurations" bson:"configurations"`
	CreatedAt      time.Time            `grove:"created_at"     bson:"created_at"`
	UpdatedAt      time.Time            `grove:"updated_at"     bson:"updated_at"`
}

type configurationModel struct {
	ID          int64                        `bson:"id"`
	Name        string                       `bson:"name"`
	Description string                       `bson:"description,omitempty"`
	Resources   []configurationResourceModel `bson:"resources"`
}

type configurationResourceModel struct {
	ResourceID int64  `bson:"resource_id"`
	Quantity   string `bson:"quantity"`
}

func toCategoryModel(c *catalog.Category) *categoryModel {
	configs := make([]configurationModel, len(c.Configurations))
	for i, cfg := range c.Configurations {
		resources := make([]configurationResourceModel, len(cfg.Resources))
		for j, r := range cfg.Resources {
			resources[j] = configurationResourceModel{
				ResourceID: r.ResourceID,
				Quantity:   r.Quantity.String(),
			}
		}
		configs[i] = configurationModel{
			ID:          cfg.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
			Resources:   resources,
		}
	}
	return &categoryModel{
		ID:             c.ID,
		Name:           c.Name,
		Description:    c.Description,
		Workload:       c.Workload,
		Configurations: configs,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func fromCategoryModel(m *categoryModel) (*catalog.Category, error) {
	configs := make([]catalog.Configuration, len(m.Configurations))
	for i, cfg := range m.Configurations {
		resources := make([]catalog.ConfigurationResource, len(cfg.Resources))
		for j, r := range cfg.Resources {
			qty, err := decimal.NewFromString(r.Quantity)
			if err != nil {
				return nil, fmt.Errorf("configuration %d: quantity: %w", cfg.ID, err)
			}
			resources[j] = catalog.ConfigurationResource{ResourceID: r.ResourceID, Quantity: qty}
		}
		configs[i] = catalog.Configuration{
			ID:          cfg.ID,
			CategoryID:  m.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
			Resources:   resources,
		}
	}
	return &catalog.Category{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		Workload:       m.Workload,
		Configurations: configs,
	}, nil
}

// ==================== Client models ====================

type clientModel struct {
	grove.BaseModel `grove:"table:cloudbill_clients"`

	NIT       string          `grove:"nit,pk"     bson:"_id"`
	Position  int64           `grove:"position"   bson:"position"`
	Name      string          `grove:"name"       bson:"name"`
	Username  string          `grove:"username"   bson:"username"`
	Password  string          `grove:"password"   bson:"password"`
	Address   string          `grove:"address"    bson:"address"`
	Email     string          `grove:"email"      bson:"email"`
	Instances []instanceModel `grove:"instances"  bson:"instances"`
	CreatedAt time.Time       `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at" bson:"updated_at"`
}

type instanceModel struct {
	ID              int64  `bson:"id"`
	ConfigurationID int64  `bson:"configuration_id"`
	Name            string `bson:"name"`
	StartDate       string `bson:"start_date,omitempty"`
	Status          string `bson:"status"`
	EndDate         string `bson:"end_date,omitempty"`
}

func toClientModel(c *client.Client) *clientModel {
	instances := make([]instanceModel, len(c.Instances))
	for i, inst := range c.Instances {
		instances[i] = instanceModel{
			ID:              inst.ID,
			ConfigurationID: inst.ConfigurationID,
			Name:            inst.Name,
			StartDate:       inst.StartDate,
			Status:          string(inst.Status),
			EndDate:         inst.EndDate,
		}
	}
	return &clientModel{
		NIT:       c.NIT,
		Name:      c.Name,
		Username:  c.Username,
		Password:  c.Password,
		Address:   c.Address,
		Email:     c.Email,
		Instances: instances,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromClientModel(m *clientModel) *client.Client {
	instances := make([]client.Instance, len(m.Instances))
	for i, inst := range m.Instances {
		instances[i] = client.Instance{
			ID:              inst.ID,
			ConfigurationID: inst.ConfigurationID,
			Name:            inst.Name,
			StartDate:       inst.StartDate,
			Status:          client.InstanceStatus(inst.Status),
			EndDate:         inst.EndDate,
		}
	}
	return &client.Client{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		NIT:       m.NIT,
		Name:      m.Name,
		Username:  m.Username,
		Password:  m.Password,
		Address:   m.Address,
		Email:     m.Email,
		Instances: instances,
	}
}

// ==================== Consumption models ====================

type consumptionModel struct {
	grove.BaseModel `grove:"table:cloudbill_consumptions"`

	ID         int64     `grove:"id,pk"       bson:"_id"`
	NIT        string    `grove:"nit"         bson:"nit"`
	InstanceID int64     `grove:"instance_id" bson:"instance_id"`
	TimeHours  string    `grove:"time_hours"  bson:"time_hours"`
	DateTime   string    `grove:"date_time"   bson:"date_time"`
	Billed     bool      `grove:"billed"      bson:"billed"`
	RecordedAt time.Time `grove:"recorded_at" bson:"recorded_at"`
}

func fromConsumptionModel(m *consumptionModel) (*consumption.Consumption, error) {
	hours, err := decimal.NewFromString(m.TimeHours)
	if err != nil {
		return nil, fmt.Errorf("consumption %d: time_hours: %w", m.ID, err)
	}
	return &consumption.Consumption{
		ID:         m.ID,
		NIT:        m.NIT,
		InstanceID: m.InstanceID,
		TimeHours:  hours,
		DateTime:   m.DateTime,
		Billed:     m.Billed,
		RecordedAt: m.RecordedAt,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:cloudbill_invoices"`

	Number         string        `grove:"number,pk"       bson:"_id"`
	Seq            int64         `grove:"seq"             bson:"seq"`
	ID             string        `grove:"id"              bson:"invoice_id"`
	ClientNIT      string        `grove:"client_nit"      bson:"client_nit"`
	IssueDate      string        `grove:"issue_date"      bson:"issue_date"`
	PeriodStart    string        `grove:"period_start"    bson:"period_start"`
	Total          string        `grove:"total"           bson:"total"`
	ConsumptionIDs []int64       `grove:"consumption_ids" bson:"consumption_ids"`
	RunID          string        `grove:"run_id"          bson:"run_id"`
	Details        []detailModel `grove:"details"         bson:"details"`
	CreatedAt      time.Time     `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time     `grove:"updated_at"      bson:"updated_at"`
}

type detailModel struct {
	ConsumptionID int64       `bson:"consumption_id"`
	InstanceID    int64       `bson:"instance_id"`
	TimeHours     string      `bson:"time_hours"`
	DateTime      string      `bson:"date_time"`
	Cost          string      `bson:"cost"`
	Resources     []lineModel `bson:"resources"`
}

type lineModel struct {
	ResourceID  int64  `bson:"resource_id"`
	Name        string `bson:"name"`
	Quantity    string `bson:"quantity"`
	CostPerHour string `bson:"cost_per_hour"`
	TimeHours   string `bson:"time_hours"`
	Total       string `bson:"total"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	seq, err := invoice.ParseNumber(inv.Number)
	if err != nil {
		return nil, err
	}
	details := make([]detailModel, len(inv.Details))
	for i, d := range inv.Details {
		lines := make([]lineModel, len(d.Resources))
		for j, l := range d.Resources {
			lines[j] = lineModel{
				ResourceID:  l.ResourceID,
				Name:        l.Name,
				Quantity:    l.Quantity.String(),
				CostPerHour: l.CostPerHour.String(),
				TimeHours:   l.TimeHours.String(),
				Total:       l.Total.Decimal().String(),
			}
		}
		details[i] = detailModel{
			ConsumptionID: d.ConsumptionID,
			InstanceID:    d.InstanceID,
			TimeHours:     d.TimeHours.String(),
			DateTime:      d.DateTime,
			Cost:          d.Cost.Decimal().String(),
			Resources:     lines,
		}
	}
	return &invoiceModel{
		Number:         inv.Number,
		Seq:            int64(seq),
		ID:             inv.ID.String(),
		ClientNIT:      inv.ClientNIT,
		IssueDate:      inv.IssueDate,
		PeriodStart:    inv.PeriodStart,
		Total:          inv.Total.Decimal().String(),
		ConsumptionIDs: append([]int64(nil), inv.ConsumptionIDs...),
		RunID:          inv.RunID.String(),
		Details:        details,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}, nil
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := parseID(m.ID, id.ParseInvoiceID)
	if err != nil {
		return nil, err
	}
	runID, err := parseID(m.RunID, id.ParseRunID)
	if err != nil {
		return nil, err
	}
	total, err := types.ParseMoney(m.Total)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: total: %w", m.Number, err)
	}

	details := make([]invoice.Detail, len(m.Details))
	for i, d := range m.Details {
		lines := make([]invoice.Line, len(d.Resources))
		for j, l := range d.Resources {
			line, err := fromLineModel(l)
			if err != nil {
				return nil, fmt.Errorf("invoice %s: %w", m.Number, err)
			}
			lines[j] = line
		}
		hours, err := decimal.NewFromString(d.TimeHours)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: time_hours: %w", m.Number, err)
		}
		cost, err := types.ParseMoney(d.Cost)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: cost: %w", m.Number, err)
		}
		details[i] = invoice.Detail{
			ConsumptionID: d.ConsumptionID,
			InstanceID:    d.InstanceID,
			TimeHours:     hours,
			DateTime:      d.DateTime,
			Cost:          cost,
			Resources:     lines,
		}
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             invID,
		Number:         m.Number,
		ClientNIT:      m.ClientNIT,
		IssueDate:      m.IssueDate,
		PeriodStart:    m.PeriodStart,
		Total:          total,
		ConsumptionIDs: append([]int64(nil), m.ConsumptionIDs...),
		RunID:          runID,
		Details:        details,
	}, nil
}

func fromLineModel(l lineModel) (invoice.Line, error) {
	var out invoice.Line
	var err error
	out.ResourceID = l.ResourceID
	out.Name = l.Name
	if out.Quantity, err = decimal.NewFromString(l.Quantity); err != nil {
		return out, fmt.Errorf("quantity: %w", err)
	}
	if out.CostPerHour, err = decimal.NewFromString(l.CostPerHour); err != nil {
		return out, fmt.Errorf("cost_per_hour: %w", err)
	}
	if out.TimeHours, err = decimal.NewFromString(l.TimeHours); err != nil {
		return out, fmt.Errorf("time_hours: %w", err)
	}
	if out.Total, err = types.ParseMoney(l.Total); err != nil {
		return out, fmt.Errorf("total: %w", err)
	}
	return out, nil
}

// parseID maps an empty field to the nil id.
func parseID(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}
