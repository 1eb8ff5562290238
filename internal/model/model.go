package model

// DDL types accepted in DDLType. Matching is case-insensitive.
const (
	DDLTypeView          = "SynapseView"
	DDLTypeExternalTable = "SynapseExternalTable"
	DDLTypeTable         = "SynapseTable"
)

const DefaultSchema = "dbo"

// WarehouseOptions describe the Synapse objects the generated DDL refers to.
type WarehouseOptions struct {
	ExternalDataSource string
	DataSourceLocation string // container root the data source points to, ex: https://acct.dfs.core.windows.net/fs
	Schema             string
	FileFormatName     string
	DateTimeAsString   bool
	ConvertDateTime    bool
	TranslateEnum      bool
}

// DefaultWarehouseOptions returns the built-in defaults the resolver starts from.
func DefaultWarehouseOptions() WarehouseOptions {
	return WarehouseOptions{Schema: DefaultSchema}
}

// AppConfiguration is built once per invocation and never mutated afterwards.
type AppConfiguration struct {
	TenantID               string
	ManifestURL            string
	DDLType                string
	ConnectionString       string
	Options                WarehouseOptions
	SourceColumnProperties string
	ReplaceViewSyntax      string
}

// WriterConfiguration is the creation-side counterpart of AppConfiguration.
type WriterConfiguration struct {
	TenantID        string
	StorageAccount  string
	RootFolder      string
	LocalFolder     string
	ManifestName    string
	CreateModelJSON bool
	MSIAuth         bool
}

type EnumValue struct {
	Value int    `json:"value"`
	Name  string `json:"name"`
}

// CDMAttribute is the subset of a CDM type attribute the pipeline reads.
type CDMAttribute struct {
	Name          string      `json:"name"`
	DataFormat    string      `json:"dataFormat"`
	DataType      string      `json:"dataType,omitempty"`
	MaximumLength int         `json:"maximumLength,omitempty"`
	Precision     int         `json:"precision,omitempty"`
	Scale         int         `json:"scale,omitempty"`
	IsNullable    bool        `json:"isNullable,omitempty"`
	EnumValues    []EnumValue `json:"enumValues,omitempty"`
}

type EntityDescriptor struct {
	Name             string         `json:"name"`
	Folder           string         `json:"folder,omitempty"`
	DataLocation     string         `json:"dataLocation,omitempty"`
	PartitionPattern string         `json:"partitionPattern,omitempty"`
	Attributes       []CDMAttribute `json:"attributes"`
}

// EntityList is the body of a createManifest request.
type EntityList struct {
	ManifestName string             `json:"manifestName"`
	Entities     []EntityDescriptor `json:"entities"`
}

// ManifestNode is one node of the manifest hierarchy arena.
// Parent is -1 for roots; Parent and Children are indices into the arena.
type ManifestNode struct {
	Name         string
	Path         string
	ManifestName string
	Entities     []EntityDescriptor
	Parent       int
	Children     []int
}

type SQLColumn struct {
	Name           string
	CDMType        string
	SQLType        string
	SourceType     string
	Expression     string
	Nullable       bool
	Overridden     bool
	DateAsString   bool
	DateConverted  bool
	EnumTranslated bool
}

type SQLMetadata struct {
	TableName    string
	TenantID     string
	Schema       string
	DataLocation string
	ManifestPath string
	Attributes   []CDMAttribute
	Columns      []SQLColumn
}

type StatementKind int

const (
	KindCreateDataSource StatementKind = iota
	KindCreateFileFormat
	KindDropIfExists
	KindCreateTable
	KindCreateView
)

func (k StatementKind) String() string {
	switch k {
	case KindCreateDataSource:
		return "create-data-source"
	case KindCreateFileFormat:
		return "create-file-format"
	case KindDropIfExists:
		return "drop-if-exists"
	case KindCreateTable:
		return "create-table"
	case KindCreateView:
		return "create-view"
	default:
		return "unknown"
	}
}

type SQLStatement struct {
	Kind   StatementKind
	Object string
	Text   string
}

// SQLStatements is the response payload of the consumption pipeline.
type SQLStatements struct {
	Statements []string `json:"statements"`
}

// NewSQLStatements flattens a statement batch into its response payload.
func NewSQLStatements(stmts []SQLStatement) SQLStatements {
	out := SQLStatements{Statements: make([]string, 0, len(stmts))}
	for _, s := range stmts {
		out.Statements = append(out.Statements, s.Text)
	}
	return out
}

type ManifestStatus struct {
	ManifestName      string `json:"manifestName"`
	IsManifestCreated bool   `json:"isManifestCreated"`
}

// ManifestDefinition is one row of Artifacts.json.
type ManifestDefinition struct {
	TableName        string `json:"tableName" yaml:"tableName"`
	DataLocation     string `json:"dataLocation" yaml:"dataLocation"`
	ManifestLocation string `json:"manifestLocation" yaml:"manifestLocation"`
	ManifestName     string `json:"manifestName" yaml:"manifestName"`
}
