// configgen writes a ready-to-edit server config. It layers an optional
// overrides file on top of the built-in defaults and fills in a random
// JWT secret when none is provided, so a fresh checkout can boot without
// hand-assembling yaml.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func main() {
	overridesPath := flag.String("overrides", "", "Optional yaml file merged over the defaults")
	outputPath := flag.String("output", "configs/config.yaml", "Where to write the generated config")
	force := flag.Bool("force", false, "Overwrite an existing output file")
	flag.Parse()

	if err := generate(*overridesPath, *outputPath, *force); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func generate(overridesPath, outputPath string, force bool) error {
	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("%s already exists, use -force to overwrite", outputPath)
		}
	}

	config := defaultConfig()
	if overridesPath != "" {
		overrides, err := loadYAML(overridesPath)
		if err != nil {
			return err
		}
		merged, err := deepMerge(config, overrides)
		if err != nil {
			return err
		}
		config = merged.(map[string]interface{})
	}

	if err := ensureJWTSecret(config); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("wrote %s\n", outputPath)
	return nil
}

func defaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"addr": "0.0.0.0:8080",
		},
		"logger": map[string]interface{}{
			"level":  "info",
			"format": "json",
		},
		"database": map[string]interface{}{
			"dsn": "classjudge:classjudge@tcp(127.0.0.1:3306)/classjudge?parseTime=true&loc=UTC",
		},
		"redis": map[string]interface{}{
			"addr": "127.0.0.1:6379",
		},
		"auth": map[string]interface{}{
			"jwtSecret": "",
			"issuer":    "classjudge",
		},
		"sandbox": map[string]interface{}{
			"enableSeccomp":    true,
			"enableCgroup":     true,
			"enableNamespaces": true,
		},
		"judge": map[string]interface{}{
			"workRoot":       "/var/lib/classjudge/work",
			"workerPoolSize": 4,
		},
		"feedback": map[string]interface{}{
			"enabled": false,
		},
	}
}

func ensureJWTSecret(config map[string]interface{}) error {
	auth, ok := config["auth"].(map[string]interface{})
	if !ok {
		auth = map[string]interface{}{}
		config["auth"] = auth
	}
	if secret, _ := auth["jwtSecret"].(string); secret != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate jwt secret: %w", err)
	}
	auth["jwtSecret"] = hex.EncodeToString(buf)
	return nil
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return normalize(value), nil
}

// normalize rewrites yaml maps onto string keys so merging stays uniform.
func normalize(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalize(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[fmt.Sprintf("%v", k)] = normalize(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, normalize(item))
		}
		return out
	default:
		return value
	}
}

func deepMerge(base, override interface{}) (interface{}, error) {
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		return nil, errors.New("base config is not a map")
	}
	overrideMap, ok := override.(map[string]interface{})
	if !ok {
		return nil, errors.New("overrides file is not a map")
	}

	merged := make(map[string]interface{}, len(baseMap))
	for k, v := range baseMap {
		merged[k] = v
	}
	for key, overrideValue := range overrideMap {
		baseValue, exists := merged[key]
		if !exists {
			merged[key] = overrideValue
			continue
		}
		baseChild, baseIsMap := baseValue.(map[string]interface{})
		overrideChild, overrideIsMap := overrideValue.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			combined, err := deepMerge(baseChild, overrideChild)
			if err != nil {
				return nil, err
			}
			merged[key] = combined
			continue
		}
		merged[key] = overrideValue
	}
	return merged, nil
}
