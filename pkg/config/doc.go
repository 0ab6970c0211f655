/*
Package config assembles and validates kupo's startup configuration from
command-line flags, and reads the node configuration file when the
node-socket producer is selected.
*/
package config
