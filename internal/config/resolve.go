package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	"cdmutil/internal/lake"
	"cdmutil/internal/model"
)

// ManifestURLSuffix is the suffix every manifest URL must carry (case-insensitive).
const ManifestURLSuffix = "cdm.json"

// Default names of the auxiliary override files, looked up in the app directory.
const (
	SourceColumnPropertiesFile = "SourceColumnProperties.json"
	ReplaceViewSyntaxFile      = "ReplaceViewSyntax.json"
)

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

// OverrideFiles locates the column-property and view-syntax files.
type OverrideFiles struct {
	SourceColumnProperties string
	ReplaceViewSyntax      string
}

// DefaultOverrideFiles returns the override file paths inside appDir.
func DefaultOverrideFiles(appDir string) OverrideFiles {
	return OverrideFiles{
		SourceColumnProperties: filepath.Join(appDir, SourceColumnPropertiesFile),
		ReplaceViewSyntax:      filepath.Join(appDir, ReplaceViewSyntaxFile),
	}
}

// layers stacks the environment under the non-empty overrides.
// Precedence (highest to lowest): override > environment > built-in default.
func layers(overrides, environment map[string]string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(known(environment, false), ""), nil); err != nil {
		return nil, fmt.Errorf("loading environment layer: %w", err)
	}
	if err := k.Load(confmap.Provider(known(overrides, true), ""), nil); err != nil {
		return nil, fmt.Errorf("loading override layer: %w", err)
	}
	return k, nil
}

// known keeps only recognised keys, spelled canonically. Empty overrides
// are dropped so they never shadow an environment value.
func known(values map[string]string, skipEmpty bool) map[string]any {
	out := make(map[string]any, len(values))
	for name, v := range values {
		key, ok := canonicalKey(name)
		if !ok {
			continue
		}
		if skipEmpty && strings.TrimSpace(v) == "" {
			continue
		}
		out[key] = v
	}
	return out
}

func parseBool(k *koanf.Koanf, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(k.String(key))
	switch {
	case raw == "":
		return def, nil
	case strings.EqualFold(raw, "true"):
		return true, nil
	case strings.EqualFold(raw, "false"):
		return false, nil
	}
	return false, &ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid boolean %q", raw)}
}

// validDDLType accepts the known DDL types in any casing. Empty means view.
func validDDLType(v string) bool {
	if v == "" {
		return true
	}
	for _, t := range []string{model.DDLTypeView, model.DDLTypeExternalTable, model.DDLTypeTable} {
		if strings.EqualFold(v, t) {
			return true
		}
	}
	return false
}

// Resolve builds the consumption-side configuration. A non-empty eventURL
// (the call came from an event trigger) always wins for the manifest URL.
func Resolve(overrides, environment map[string]string, eventURL string, files OverrideFiles) (model.AppConfiguration, error) {
	k, err := layers(overrides, environment)
	if err != nil {
		return model.AppConfiguration{}, err
	}

	manifestURL := strings.TrimSpace(eventURL)
	if manifestURL == "" {
		manifestURL = strings.TrimSpace(k.String(KeyManifestURL))
	}
	if manifestURL == "" {
		return model.AppConfiguration{}, &ConfigurationError{Key: KeyManifestURL, Reason: "missing"}
	}
	if !strings.HasSuffix(strings.ToLower(manifestURL), ManifestURLSuffix) {
		return model.AppConfiguration{}, &ConfigurationError{
			Key:    KeyManifestURL,
			Reason: fmt.Sprintf("invalid manifest URL %q: must end with %s", manifestURL, ManifestURLSuffix),
		}
	}

	ddlType := strings.TrimSpace(k.String(KeyDDLType))
	if !validDDLType(ddlType) {
		return model.AppConfiguration{}, &ConfigurationError{
			Key:    KeyDDLType,
			Reason: fmt.Sprintf("unknown DDL type %q", ddlType),
		}
	}

	opts := model.DefaultWarehouseOptions()
	opts.DataSourceLocation = lake.ContainerRoot(manifestURL)
	if v := k.String(KeyDataSourceName); v != "" {
		opts.ExternalDataSource = v
	}
	if v := k.String(KeySchema); v != "" {
		opts.Schema = v
	}
	if v := k.String(KeyFileFormat); v != "" {
		opts.FileFormatName = v
	}
	if opts.DateTimeAsString, err = parseBool(k, KeyDateTimeAsString, opts.DateTimeAsString); err != nil {
		return model.AppConfiguration{}, err
	}
	if opts.ConvertDateTime, err = parseBool(k, KeyConvertDateTime, opts.ConvertDateTime); err != nil {
		return model.AppConfiguration{}, err
	}
	if opts.TranslateEnum, err = parseBool(k, KeyTranslateEnum, opts.TranslateEnum); err != nil {
		return model.AppConfiguration{}, err
	}

	return model.AppConfiguration{
		TenantID:               k.String(KeyTenantID),
		ManifestURL:            manifestURL,
		DDLType:                ddlType,
		ConnectionString:       k.String(KeySQLEndpoint),
		Options:                opts,
		SourceColumnProperties: files.SourceColumnProperties,
		ReplaceViewSyntax:      files.ReplaceViewSyntax,
	}, nil
}

// ResolveWriter builds the creation-side configuration with the same precedence.
// LocalFolder and ManifestLocation are aliases; LocalFolder wins when both are set.
func ResolveWriter(overrides, environment map[string]string) (model.WriterConfiguration, error) {
	k, err := layers(overrides, environment)
	if err != nil {
		return model.WriterConfiguration{}, err
	}

	cfg := model.WriterConfiguration{
		TenantID:       k.String(KeyTenantID),
		StorageAccount: k.String(KeyStorageAccount),
		RootFolder:     k.String(KeyRootFolder),
		LocalFolder:    k.String(KeyLocalFolder),
		ManifestName:   k.String(KeyManifestName),
		MSIAuth:        true,
	}
	if cfg.LocalFolder == "" {
		cfg.LocalFolder = k.String(KeyManifestLocation)
	}
	if cfg.CreateModelJSON, err = parseBool(k, KeyCreateModelJSON, false); err != nil {
		return model.WriterConfiguration{}, err
	}

	var problems []string
	if strings.TrimSpace(cfg.RootFolder) == "" {
		problems = append(problems, KeyRootFolder)
	}
	if strings.Trim(cfg.LocalFolder, "/ ") == "" {
		problems = append(problems, KeyLocalFolder)
	}
	if len(problems) > 0 {
		return model.WriterConfiguration{}, &ConfigurationError{
			Key:    strings.Join(problems, ","),
			Reason: "missing",
		}
	}
	return cfg, nil
}

// Lookup returns the effective value of a single key.
func Lookup(overrides, environment map[string]string, key string) (string, error) {
	k, err := layers(overrides, environment)
	if err != nil {
		return "", err
	}
	return k.String(key), nil
}
