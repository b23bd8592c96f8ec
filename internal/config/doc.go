// Package config loads service settings from SKETCH_ environment variables
// and an optional YAML file using viper, then validates them with
// go-playground/validator tags.
package config
