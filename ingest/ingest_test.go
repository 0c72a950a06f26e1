package ingest

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
)

const configurationXML = `<?xml version="1.0"?>
<archivoConfiguraciones>
  <listaRecursos>
    <recurso id="1">
      <nombre>Nucleo</nombre>
      <abreviatura>vCPU</abreviatura>
      <metrica>Nucleos</metrica>
      <tipo>Hardware</tipo>
      <valorXhora>5.00</valorXhora>
    </recurso>
    <recurso id="2">
      <nombre>Linux</nombre>
      <abreviatura>OS</abreviatura>
      <metrica>Licencia</metrica>
      <tipo>Software</tipo>
      <valorXhora>0.25</valorXhora>
    </recurso>
  </listaRecursos>
  <listaCategorias>
    <categoria id="1">
      <nombre>Web</nombre>
      <descripcion>Servidores web</descripcion>
      <cargaTrabajo>Media</cargaTrabajo>
      <listaConfiguraciones>
        <configuracion id="10">
          <nombre>Basica</nombre>
          <descripcion>2 nucleos</descripcion>
          <recursosConfiguracion>
            <recurso id="1">2</recurso>
            <recurso id="2">1</recurso>
          </recursosConfiguracion>
        </configuracion>
      </listaConfiguraciones>
    </categoria>
  </listaCategorias>
  <listaClientes>
    <cliente nit="110339-k">
      <nombre>Acme</nombre>
      <usuario>acme</usuario>
      <clave>secret</clave>
      <direccion>Zona 10</direccion>
      <correoElectronico>billing@acme.test</correoElectronico>
      <listaInstancias>
        <instancia id="1">
          <idConfiguracion>10</idConfiguracion>
          <nombre>web-1</nombre>
          <fechaInicio>Desde el 01/02/2024</fechaInicio>
          <estado>Vigente</estado>
          <fechaFinal>31/12/2024</fechaFinal>
        </instancia>
        <instancia id="2">
          <idConfiguracion>10</idConfiguracion>
          <nombre>web-2</nombre>
          <fechaInicio>01/02/2024</fechaInicio>
          <estado>Cancelada</estado>
          <fechaFinal>cancelada el 15/03/2024</fechaFinal>
        </instancia>
      </listaInstancias>
    </cliente>
    <cliente nit="not-a-nit">
      <nombre>Broken</nombre>
    </cliente>
  </listaClientes>
</archivoConfiguraciones>`

func TestParseConfigurationXML(t *testing.T) {
	doc, counts, err := ParseConfiguration(strings.NewReader(configurationXML), FormatXML)
	require.NoError(t, err)

	assert.Equal(t, Counts{
		Resources:       2,
		Categories:      1,
		Configurations:  1,
		Clients:         1,
		Instances:       2,
		RejectedClients: 1,
	}, counts)

	require.Len(t, doc.Resources, 2)
	assert.Equal(t, "Nucleo", doc.Resources[0].Name)
	assert.Equal(t, catalog.ResourceSoftware, doc.Resources[1].Type)
	assert.True(t, doc.Resources[1].ValuePerHour.Equal(decimal.RequireFromString("0.25")))

	cfg := doc.Categories[0].Configurations[0]
	assert.Equal(t, int64(10), cfg.ID)
	assert.Equal(t, int64(1), cfg.CategoryID)
	require.Len(t, cfg.Resources, 2)
	assert.True(t, cfg.Resources[0].Quantity.Equal(decimal.NewFromInt(2)))

	c := doc.Clients[0]
	assert.Equal(t, "110339-K", c.NIT)
	assert.Equal(t, "billing@acme.test", c.Email)
	require.Len(t, c.Instances, 2)
	assert.Equal(t, "01/02/2024", c.Instances[0].StartDate)
	assert.Equal(t, client.StatusActive, c.Instances[0].Status)
	assert.Empty(t, c.Instances[0].EndDate)
	assert.Equal(t, client.StatusCancelled, c.Instances[1].Status)
	assert.Equal(t, "15/03/2024", c.Instances[1].EndDate)
}

func TestParseConfigurationXMLErrors(t *testing.T) {
	tests := []struct {
		name  string
		xml   string
		field string
	}{
		{"malformed", `<archivo><listaRecursos>`, "document"},
		{"bad id", `<a><listaRecursos><recurso id="x"><nombre>n</nombre></recurso></listaRecursos></a>`, "listaRecursos[0].id"},
		{"negative rate", `<a><listaRecursos><recurso id="1"><nombre>n</nombre><valorXhora>-1</valorXhora></recurso></listaRecursos></a>`, "listaRecursos[0].valorXhora"},
		{"unknown type", `<a><listaRecursos><recurso id="1"><nombre>n</nombre><tipo>Firmware</tipo></recurso></listaRecursos></a>`, "resources[0].type"},
		{"cancelled without end", `<a><listaClientes><cliente nit="1-1"><nombre>x</nombre><listaInstancias>
			<instancia id="1"><idConfiguracion>1</idConfiguracion><estado>Cancelada</estado></instancia>
		</listaInstancias></cliente></listaClientes></a>`, "clients[0].instances[0].end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseConfiguration(strings.NewReader(tt.xml), FormatXML)
			require.Error(t, err)
			var ie *Error
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.field, ie.Field)
		})
	}
}

func TestParseConfigurationJSON(t *testing.T) {
	body := `{
	  "resources": [{"id": 1, "name": "CPU", "type": "Hardware", "value_per_hour": "5"}],
	  "categories": [{"id": 1, "name": "Web", "configurations": [
	    {"id": 10, "name": "Small", "resources": [{"resource_id": 1, "quantity": "2"}]}
	  ]}],
	  "clients": [
	    {"nit": "12345-6", "name": "Acme", "instances": [{"id": 1, "configuration_id": 10, "name": "w", "status": "active"}]},
	    {"nit": "bad", "name": "Nope"}
	  ]
	}`
	doc, counts, err := ParseConfiguration(strings.NewReader(body), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Clients)
	assert.Equal(t, 1, counts.RejectedClients)
	assert.Equal(t, client.StatusActive, doc.Clients[0].Instances[0].Status)
	assert.Equal(t, int64(1), doc.Categories[0].Configurations[0].CategoryID)
}

const consumptionsXML = `<listadoConsumos>
  <consumo nitCliente="110339-K" idInstancia="1">
    <tiempo>1.75</tiempo>
    <fechaHora>Guatemala, 01/03/2024 14:30 hrs</fechaHora>
  </consumo>
  <consumo nit="12345-6" id="2">
    <tiempo>3</tiempo>
    <fechaHora>05/03/2024</fechaHora>
  </consumo>
  <consumo nitCliente="BAD" idInstancia="1">
    <tiempo>1</tiempo>
    <fechaHora>05/03/2024</fechaHora>
  </consumo>
  <consumo nitCliente="12345-6" idInstancia="3">
    <tiempo>2</tiempo>
    <fechaHora>sin fecha</fechaHora>
  </consumo>
</listadoConsumos>`

func TestParseConsumptionsXML(t *testing.T) {
	recs, counts, err := ParseConsumptions(strings.NewReader(consumptionsXML), FormatXML)
	require.NoError(t, err)

	assert.Equal(t, 3, counts.Consumptions)
	assert.Equal(t, 1, counts.RejectedConsumptions)
	require.Len(t, recs, 3)

	assert.Equal(t, "01/03/2024 14:30", recs[0].DateTime)
	assert.Equal(t, "110339-K", recs[0].NIT)
	assert.True(t, recs[0].TimeHours.Equal(decimal.RequireFromString("1.75")))

	assert.Equal(t, "12345-6", recs[1].NIT)
	assert.Equal(t, int64(2), recs[1].InstanceID)
	assert.Equal(t, "05/03/2024 00:00", recs[1].DateTime)

	assert.Equal(t, "sin fecha", recs[2].DateTime)
}

func TestParseConsumptionsJSON(t *testing.T) {
	for _, body := range []string{
		`[{"nit":"12345-6","instance_id":1,"time_hours":"2.5","date_time":"01/03/2024 10:00"},{"nit":"x","instance_id":1}]`,
		`{"consumptions":[{"nit":"12345-6","instance_id":1,"time_hours":2.5,"date_time":"01/03/2024 10:00"},{"nit":"x","instance_id":1}]}`,
	} {
		recs, counts, err := ParseConsumptions(strings.NewReader(body), FormatJSON)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 1, counts.RejectedConsumptions)
		assert.True(t, recs[0].TimeHours.Equal(decimal.RequireFromString("2.5")))
	}
}

func TestNormalizeRecord(t *testing.T) {
	rec, err := NormalizeRecord(consumption.Record{NIT: "1-k", InstanceID: 1, TimeHours: decimal.NewFromInt(1), DateTime: "1/3/2024"})
	require.NoError(t, err)
	assert.Equal(t, "1-K", rec.NIT)

	_, err = NormalizeRecord(consumption.Record{NIT: "1-1", InstanceID: 1, TimeHours: decimal.NewFromInt(-1), DateTime: "01/03/2024"})
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "time_hours", ie.Field)

	_, err = NormalizeRecord(consumption.Record{NIT: "nope", DateTime: "01/03/2024"})
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "nit", ie.Field)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, DetectFormat("application/json; charset=utf-8", nil))
	assert.Equal(t, FormatXML, DetectFormat("text/xml", []byte("{")))
	assert.Equal(t, FormatJSON, DetectFormat("", []byte("  [1]")))
	assert.Equal(t, FormatXML, DetectFormat("", []byte("<a/>")))
}
