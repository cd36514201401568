package lambdawrap

import (
	"context"
	"os"
)

type envKey struct{}

// WithEnv returns a context carrying env as the process environment seen by
// a handler.
func WithEnv(ctx context.Context, env map[string]string) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFromContext returns the environment stored by WithEnv.
func EnvFromContext(ctx context.Context) (map[string]string, bool) {
	env, ok := ctx.Value(envKey{}).(map[string]string)
	return env, ok
}

// LookupEnv looks key up in the context environment, or in the OS
// environment when ctx carries none.
func LookupEnv(ctx context.Context, key string) (string, bool) {
	if env, ok := EnvFromContext(ctx); ok {
		v, ok := env[key]
		return v, ok
	}
	return os.LookupEnv(key)
}

// Getenv is LookupEnv without the presence flag.
func Getenv(ctx context.Context, key string) string {
	v, _ := LookupEnv(ctx, key)
	return v
}
