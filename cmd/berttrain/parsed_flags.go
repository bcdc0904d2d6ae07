package main

import "github.com/0x4D31/berttrain/internal/loader"

// parsedFlags groups the command line options that select value sources.
type parsedFlags struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	JSON       bool
	LookupEnv  func(string) (string, bool)
	Overrides  loader.Overrides
}

func (pf parsedFlags) loaderOptions() loader.Options {
	return loader.Options{
		ConfigPath: pf.ConfigPath,
		EnvFile:    pf.EnvFile,
		LookupEnv:  pf.LookupEnv,
		Overrides:  pf.Overrides,
	}
}
