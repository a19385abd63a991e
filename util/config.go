package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "federation"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host               string
		HttpPort           int    `yaml:"httpPort"`
		SslDomain          string `yaml:"sslDomain"`
		AccountName        string `yaml:"accountName"`
		BlocklistPath      string `yaml:"blocklistPath"`
		SignatureMaxAgeSec int    `yaml:"signatureMaxAgeSec"`
		InsecureFetch      bool   `yaml:"insecureFetch"`
	}
}

// SignatureMaxAge is the maximum accepted age of the Date header on a
// signed request. Falls back to 300s when unset.
func (c *AppConfig) SignatureMaxAge() int {
	if c.Conf.SignatureMaxAgeSec <= 0 {
		return 300
	}
	return c.Conf.SignatureMaxAgeSec
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("FEDERATION_HOST")
	envHttpPort := os.Getenv("FEDERATION_HTTPPORT")
	envSslDomain := os.Getenv("FEDERATION_SSLDOMAIN")
	envAccount := os.Getenv("FEDERATION_ACCOUNT")
	envBlocklist := os.Getenv("FEDERATION_BLOCKLIST")
	envSigMaxAge := os.Getenv("FEDERATION_SIGNATURE_MAXAGE")
	envInsecureFetch := os.Getenv("FEDERATION_INSECURE_FETCH")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envAccount != "" {
		c.Conf.AccountName = envAccount
	}

	if envBlocklist != "" {
		c.Conf.BlocklistPath = envBlocklist
	}

	if envSigMaxAge != "" {
		v, err := strconv.Atoi(envSigMaxAge)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.SignatureMaxAgeSec = v
	}

	if envInsecureFetch == "true" {
		c.Conf.InsecureFetch = true
	}

	return c, nil
}
