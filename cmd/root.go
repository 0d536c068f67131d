package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nsyszr/eventbroker/config"
	"github.com/nsyszr/eventbroker/pkg/cmd/cli"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var c = new(config.Config)
var cmdHandler = cli.NewHandler(c)

var (
	Version   = "dev-master"
	BuildTime = "undefined"
	GitHash   = "undefined"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "eventbroker",
	Short: "Device Connect event broker",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

// Execute runs the event broker and is called by main.main()
func Execute() {
	c.BuildTime = BuildTime
	c.BuildVersion = Version
	c.BuildHash = GitHash

	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.eventbroker.yml)")
}

// initConfig reads in a .env file, the config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Could not read .env file because %s", err)
	}

	if cfgFile != "" {
		// enable ability to specify config file via flag
		viper.SetConfigFile(cfgFile)
	} else {
		path := absPathify("$HOME")
		if _, err := os.Stat(filepath.Join(path, ".eventbroker.yml")); err != nil {
			_, _ = os.Create(filepath.Join(path, ".eventbroker.yml"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".eventbroker") // name of config file (without extension)
		viper.AddConfigPath("$HOME")        // adding home directory as first search path
	}
	viper.AutomaticEnv() // read in environment variables that match

	// Fetch settings
	viper.BindEnv("PORT")
	viper.SetDefault("PORT", 8080)

	viper.BindEnv("HOST")
	viper.SetDefault("HOST", "")

	viper.BindEnv("DATABASE_URL")
	viper.SetDefault("DATABASE_URL", "memory")

	viper.BindEnv("NATS_URL")
	viper.SetDefault("NATS_URL", "nats://localhost:4222")

	viper.BindEnv("NATS_SUBJECT")
	viper.SetDefault("NATS_SUBJECT", "dconnect.manager.v1")

	viper.BindEnv("LOG_LEVEL")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.BindEnv("MANAGER_DOMAIN")
	viper.SetDefault("MANAGER_DOMAIN", "localhost.deviceconnect.org")

	viper.BindEnv("REQUIRE_ORIGIN")
	viper.SetDefault("REQUIRE_ORIGIN", true)

	viper.BindEnv("LEGACY_SDK_VERSION")
	viper.SetDefault("LEGACY_SDK_VERSION", "1.0.0")

	viper.BindEnv("KEEPALIVE_ENABLED")
	viper.SetDefault("KEEPALIVE_ENABLED", true)

	viper.BindEnv("KEEPALIVE_INTERVAL")
	viper.SetDefault("KEEPALIVE_INTERVAL", "30s")

	viper.BindEnv("KEEPALIVE_GRACE_CYCLES")
	viper.SetDefault("KEEPALIVE_GRACE_CYCLES", 0)

	viper.BindEnv("WEBSOCKET_PING_INTERVAL")
	viper.SetDefault("WEBSOCKET_PING_INTERVAL", "20s")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf(`Config file not found because "%s"`, err)
		fmt.Println("")
	}

	if err := viper.Unmarshal(c); err != nil {
		log.Fatal(fmt.Sprintf("Could not read config because %s.", err))
	}
}

func absPathify(inPath string) string {
	if strings.HasPrefix(inPath, "$HOME") {
		inPath = userHomeDir() + inPath[5:]
	}

	if strings.HasPrefix(inPath, "$") {
		end := strings.Index(inPath, string(os.PathSeparator))
		inPath = os.Getenv(inPath[1:end]) + inPath[end:]
	}

	if filepath.IsAbs(inPath) {
		return filepath.Clean(inPath)
	}

	p, err := filepath.Abs(inPath)
	if err == nil {
		return filepath.Clean(p)
	}
	return ""
}

func userHomeDir() string {
	if runtime.GOOS == "windows" {
		home := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		if home == "" {
			home = os.Getenv("USERPROFILE")
		}
		return home
	}
	return os.Getenv("HOME")
}
