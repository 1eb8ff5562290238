package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cdmutil/internal/config"
)

// Flag names and the configuration keys they override.
var consumptionFlags = map[string]string{
	"manifest-url":     config.KeyManifestURL,
	"tenant":           config.KeyTenantID,
	"ddl-type":         config.KeyDDLType,
	"sql-endpoint":     config.KeySQLEndpoint,
	"data-source":      config.KeyDataSourceName,
	"schema":           config.KeySchema,
	"file-format":      config.KeyFileFormat,
	"date-as-string":   config.KeyDateTimeAsString,
	"convert-datetime": config.KeyConvertDateTime,
	"translate-enum":   config.KeyTranslateEnum,
}

var writerFlags = map[string]string{
	"tenant":            config.KeyTenantID,
	"storage-account":   config.KeyStorageAccount,
	"root-folder":       config.KeyRootFolder,
	"local-folder":      config.KeyLocalFolder,
	"manifest-name":     config.KeyManifestName,
	"create-model-json": config.KeyCreateModelJSON,
}

func addConsumptionFlags(fs *pflag.FlagSet) {
	fs.String("manifest-url", "", "Root manifest URL or path (must end with cdm.json)")
	fs.String("tenant", "", "Tenant id")
	fs.String("ddl-type", "", "SynapseView (default), SynapseExternalTable or SynapseTable")
	fs.String("sql-endpoint", "", "SQL endpoint connection string")
	fs.String("data-source", "", "External data source name")
	fs.String("schema", "", "Target schema (default dbo)")
	fs.String("file-format", "", "External file format name")
	fs.Bool("date-as-string", false, "Expose date/time columns as strings")
	fs.Bool("convert-datetime", false, "Read date/time columns as text and convert them in the view")
	fs.Bool("translate-enum", false, "Translate enum values to their names")
}

func addWriterFlags(fs *pflag.FlagSet) {
	fs.String("tenant", "", "Tenant id")
	fs.String("storage-account", "", "ADLS Gen2 storage account (empty writes to the local disk)")
	fs.String("root-folder", "", "File system (or local base directory)")
	fs.String("local-folder", "", "Slash-delimited folder of the manifest, ex: Tables/AccountReceivable/Group")
	fs.String("manifest-name", "", "Manifest name")
	fs.Bool("create-model-json", false, "Also write model.json")
}

// overrides returns the explicitly set flags of cmd as configuration overrides.
func overrides(cmd *cobra.Command, flagKeys map[string]string) (map[string]string, error) {
	return config.FlagOverrides(cmd.Flags(), flagKeys)
}
