package dotenv

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	EnvKey  = "BEAUTYLAND_ENV"
	ProdEnv = "production"
	DevEnv  = "dev"
	TestEnv = "test"
)

// Env returns the runtime env, "dev" when unset.
func Env() string {
	env := os.Getenv(EnvKey)
	if env == "" {
		return DevEnv
	}
	return env
}

func IsProdEnv() bool {
	return Env() == ProdEnv
}

// Load loads the .env file following the convention: https://github.com/bkeepers/dotenv#what-other-env-files-can-i-use
// It only need to be called once in main function, other code can use env through os.Getenv('ENV_NAME') during runtime
func LoadDotEnvs() error {
	loadDotEnvs("")
	return nil
}

func loadDotEnvs(rootPath string) {
	env := Env()

	// .env.[runtime_env].local has highest priority, usually contains username and password and other sensitive information
	godotenv.Load(rootPath + ".env." + env + ".local")
	godotenv.Load(rootPath + ".env.local")
	// .env.[runtime_env] usually contains db connection information
	godotenv.Load(rootPath + ".env." + env)
	// .env usually contains shared variables(which might be overwritten by envs above)
	godotenv.Load(rootPath + ".env")
}

// Have to write this helper function due to a known issue of godotenv
// https://github.com/joho/godotenv/issues/43
// Tests run in their package directory, so .env.test is looked up at the
// closest parent holding go.mod.
func LoadDotEnvsInTests() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	godotenv.Load(filepath.Join(moduleRoot(cwd), ".env.test"))
	return nil
}

func moduleRoot(dir string) string {
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(filepath.Join(d, "go.mod")); err == nil {
			return d
		}
		if filepath.Dir(d) == d {
			return dir
		}
	}
}
