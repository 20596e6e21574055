// Package config loads and watches the poolchem server configuration file.
//
// Top-level sections:
//   - server: http_port, shutdown_timeout, ping_interval
//   - dosing: calcium hypochlorite product catalog and request defaults
//     (product, target_ph, target_chlorine_ppm, target_stabilizer_ppm,
//     target_salt_ppm)
//   - advisory: ideal ranges and "field op value" threshold rules
//   - strip: placeholder reader seed and upload size limit
//   - bot: token_env for the optional Telegram front-end
//
// Load(path) reads the YAML file on top of Default(), then validates ports,
// builds the dosing calculator once to check the catalog, and checks every
// range and rule. Watch(ctx, path, onChange) reloads on save via fsnotify.
package config
