package config

import (
	"os"
	"strings"
)

// Configuration keys, as sent in request headers or set in the environment.
const (
	KeyTenantID         = "TenantId"
	KeyStorageAccount   = "StorageAccount"
	KeyRootFolder       = "RootFolder"
	KeyManifestLocation = "ManifestLocation"
	KeyLocalFolder      = "LocalFolder"
	KeyManifestName     = "ManifestName"
	KeyManifestURL      = "ManifestURL"
	KeySQLEndpoint      = "SQLEndpoint"
	KeyDDLType          = "DDLType"
	KeyDataSourceName   = "DataSourceName"
	KeySchema           = "Schema"
	KeyFileFormat       = "FileFormat"
	KeyDateTimeAsString = "DateTimeAsString"
	KeyConvertDateTime  = "ConvertDateTime"
	KeyTranslateEnum    = "TranslateEnum"
	KeyCreateModelJSON  = "CreateModelJson"
	KeyTableList        = "TableList"
)

// Keys lists every key the resolver reads.
var Keys = []string{
	KeyTenantID, KeyStorageAccount, KeyRootFolder, KeyManifestLocation, KeyLocalFolder,
	KeyManifestName, KeyManifestURL, KeySQLEndpoint, KeyDDLType, KeyDataSourceName,
	KeySchema, KeyFileFormat, KeyDateTimeAsString, KeyConvertDateTime, KeyTranslateEnum,
	KeyCreateModelJSON, KeyTableList,
}

func GetEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// canonicalKey maps a key in any casing (http.Header canonicalizes "TenantId"
// to "Tenantid") onto its declared spelling.
func canonicalKey(name string) (string, bool) {
	for _, k := range Keys {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}
