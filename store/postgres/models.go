package postgres

import (
	"encoding/json"
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

// ==================== Catalog models ====================

type resourceModel struct {
	grove.BaseModel `grove:"table:cloudbill_resources"`

	ID           int64     `grove:"id,pk"`
	Position     int64     `grove:"position"`
	Name         string    `grove:"name"`
	Abbreviation string    `grove:"abbreviation"`
	Metric       string    `grove:"metric"`
	Type         string    `grove:"type"`
	ValuePerHour string    `grove:"value_per_hour"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func toResourceModel(r *catalog.Resource, position int64) *resourceModel {
	return &resourceModel{
		ID:           r.ID,
		Position:     position,
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

	ID             int64           `grove:"id,pk"`
	Position       int64           `grove:"position"`
	Name           string          `grove:"name"`
	Description    string          `grove:"description"`
	Workload       string          `grove:"workload"`
	Configurations json.RawMessage `grove:"configurations,type:jsonb"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toCategoryModel(c *catalog.Category, position int64) (*categoryModel, error) {
	configs, err := json.Marshal(c.Configurations)
	if err != nil {
		return nil, err
	}
	return &categoryModel{
		ID:             c.ID,
		Position:       position,
		Name:           c.Name,
		Description:    c.Description,
		Workload:       c.Workload,
		Configurations: configs,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}, nil
}

func fromCategoryModel(m *categoryModel) (*catalog.Category, error) {
	var configs []catalog.Configuration
	if len(m.Configurations) > 0 {
		if err := json.Unmarshal(m.Configurations, &configs); err != nil {
			return nil, fmt.Errorf("category %d: configurations: %w", m.ID, err)
		}
	}
	c := &catalog.Category{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		Workload:       m.Workload,
		Configurations: configs,
	}
	c.Own()
	return c, nil
}

// ==================== Client models ====================

type clientModel struct {
	grove.BaseModel `grove:"table:cloudbill_clients"`

	NIT       string          `grove:"nit,pk"`
	Position  int64           `grove:"position"`
	Name      string          `grove:"name"`
	Username  string          `grove:"username"`
	Password  string          `grove:"password"`
	Address   string          `grove:"address"`
	Email     string          `grove:"email"`
	Instances json.RawMessage `grove:"instances,type:jsonb"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toClientModel(c *client.Client, position int64) (*clientModel, error) {
	instances, err := json.Marshal(c.Instances)
	if err != nil {
		return nil, err
	}
	return &clientModel{
		NIT:       c.NIT,
		Position:  position,
		Name:      c.Name,
		Username:  c.Username,
		Password:  c.Password,
		Address:   c.Address,
		Email:     c.Email,
		Instances: instances,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func fromClientModel(m *clientModel) (*client.Client, error) {
	var instances []client.Instance
	if len(m.Instances) > 0 {
		if err := json.Unmarshal(m.Instances, &instances); err != nil {
			return nil, fmt.Errorf("client %s: instances: %w", m.NIT, err)
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
	}, nil
}

// ==================== Consumption models ====================

type consumptionModel struct {
	grove.BaseModel `grove:"table:cloudbill_consumptions"`

	ID         int64     `grove:"id,pk"`
	NIT        string    `grove:"nit"`
	InstanceID int64     `grove:"instance_id"`
	TimeHours  string    `grove:"time_hours"`
	DateTime   string    `grove:"date_time"`
	Billed     bool      `grove:"billed"`
	RecordedAt time.Time `grove:"recorded_at"`
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

	Number         string          `grove:"number,pk"`
	Seq            int64           `grove:"seq"`
	ID             string          `grove:"id"`
	ClientNIT      string          `grove:"client_nit"`
	IssueDate      string          `grove:"issue_date"`
	PeriodStart    string          `grove:"period_start"`
	Total          string          `grove:"total"`
	ConsumptionIDs json.RawMessage `grove:"consumption_ids,type:jsonb"`
	RunID          string          `grove:"run_id"`
	Details        json.RawMessage `grove:"details,type:jsonb"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	seq, err := invoice.ParseNumber(inv.Number)
	if err != nil {
		return nil, err
	}
	ids, err := json.Marshal(inv.ConsumptionIDs)
	if err != nil {
		return nil, err
	}
	details, err := json.Marshal(inv.Details)
	if err != nil {
		return nil, err
	}
	return &invoiceModel{
		Number:         inv.Number,
		Seq:            int64(seq),
		ID:             inv.ID.String(),
		ClientNIT:      inv.ClientNIT,
		IssueDate:      inv.IssueDate,
		PeriodStart:    inv.PeriodStart,
		Total:          inv.Total.Decimal().String(),
		ConsumptionIDs: ids,
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

	inv := &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          invID,
		Number:      m.Number,
		ClientNIT:   m.ClientNIT,
		IssueDate:   m.IssueDate,
		PeriodStart: m.PeriodStart,
		Total:       total,
		RunID:       runID,
	}
	if len(m.ConsumptionIDs) > 0 {
		if err := json.Unmarshal(m.ConsumptionIDs, &inv.ConsumptionIDs); err != nil {
			return nil, fmt.Errorf("invoice %s: consumption_ids: %w", m.Number, err)
		}
	}
	if len(m.Details) > 0 {
		if err := json.Unmarshal(m.Details, &inv.Details); err != nil {
			return nil, fmt.Errorf("invoice %s: details: %w", m.Number, err)
		}
	}
	return inv, nil
}

// parseID maps an empty column to the nil id.
func parseID(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}
