// SPDX-License-Identifier: MPL-2.0

// Package config loads ctrprep settings from defaults, an optional CUE file
// and CTRPREP_* environment variables, in increasing order of precedence.
//
// The CUE file is validated against the embedded #Config schema before its
// values reach Viper.
package config
