package common

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	commonconfig "github.com/armadaproject/taskhive/internal/common/config"
	"github.com/armadaproject/taskhive/internal/common/logging"
)

const baseConfigFileName = "config"

// LoadConfig reads the config file found in defaultPath, then merges in every file in overrideConfigs
// (later files win) and finally any TASKHIVE_ prefixed environment variables, and decodes the result into config.
func LoadConfig(config any, defaultPath string, overrideConfigs []string) *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigName(baseConfigFileName)
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		log.Errorf("Error reading base config path=%s name=%s: %v", defaultPath, baseConfigFileName, err)
		os.Exit(-1)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			log.Errorf("Error reading config from %s: %v", overrideConfig, err)
			os.Exit(-1)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.SetEnvPrefix("TASKHIVE")
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		log.Error(err)
		os.Exit(-1)
	}
	return v
}

func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.AddHook(logging.NewPrometheusHook(prometheus.DefaultRegisterer))
	if level, ok := os.LookupEnv("TASKHIVE_LOG_LEVEL"); ok {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			log.Warnf("Ignoring invalid TASKHIVE_LOG_LEVEL %q: %v", level, err)
			return
		}
		log.SetLevel(parsed)
	}
}

func BindCommandlineArguments() {
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

// ServeMetrics exposes the default prometheus registry on the given port and returns a shutdown function.
func ServeMetrics(port uint16) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return ServeHttp(port, mux)
}

// ServeHttp starts an http server in the background and returns a function that shuts it down.
func ServeHttp(port uint16, mux http.Handler) (shutdown func()) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Printf("Starting http server listening on %d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err) // TODO: Handle more gracefully.
		}
	}()

	return func() {
		log.Printf("Stopping http server listening on %d", port)
		if err := srv.Close(); err != nil {
			log.WithError(err).Warnf("Http server on port %d did not close cleanly", port)
		}
	}
}
