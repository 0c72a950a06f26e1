package ingest

// XML shapes of the configuration and consumption documents.

// The root element names are not checked.
type xmlDocument struct {
	Resources  []xmlResource `xml:"listaRecursos>recurso"`
	Categories []xmlCategory `xml:"listaCategorias>categoria"`
	Clients    []xmlClient   `xml:"listaClientes>cliente"`
}

type xmlResource struct {
	ID           string `xml:"id,attr"`
	Name         string `xml:"nombre"`
	Abbreviation string `xml:"abreviatura"`
	Metric       string `xml:"metrica"`
	Type         string `xml:"tipo"`
	ValuePerHour string `xml:"valorXhora"`
}

type xmlCategory struct {
	ID             string             `xml:"id,attr"`
	Name           string             `xml:"nombre"`
	Description    string             `xml:"descripcion"`
	Workload       string             `xml:"cargaTrabajo"`
	Configurations []xmlConfiguration `xml:"listaConfiguraciones>configuracion"`
}

type xmlConfiguration struct {
	ID          string                     `xml:"id,attr"`
	Name        string                     `xml:"nombre"`
	Description string                     `xml:"descripcion"`
	Resources   []xmlConfigurationResource `xml:"recursosConfiguracion>recurso"`
}

type xmlConfigurationResource struct {
	ID       string `xml:"id,attr"`
	Quantity string `xml:",chardata"`
}

type xmlClient struct {
	NIT       string        `xml:"nit,attr"`
	Name      string        `xml:"nombre"`
	Username  string        `xml:"usuario"`
	Password  string        `xml:"clave"`
	Address   string        `xml:"direccion"`
	Email     string        `xml:"correoElectronico"`
	Instances []xmlInstance `xml:"listaInstancias>instancia"`
}

type xmlInstance struct {
	ID              string `xml:"id,attr"`
	ConfigurationID string `xml:"idConfiguracion"`
	Name            string `xml:"nombre"`
	StartDate       string `xml:"fechaInicio"`
	Status          string `xml:"estado"`
	EndDate         string `xml:"fechaFinal"`
}

type xmlConsumptions struct {
	Consumptions []xmlConsumption `xml:"consumo"`
}

type xmlConsumption struct {
	NITClient  string `xml:"nitCliente,attr"`
	NIT        string `xml:"nit,attr"`
	InstanceID string `xml:"idInstancia,attr"`
	ID         string `xml:"id,attr"`
	Time       string `xml:"tiempo"`
	DateTime   string `xml:"fechaHora"`
}
