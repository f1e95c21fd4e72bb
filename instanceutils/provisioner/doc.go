// Package provisioner runs a provisioning script at most once per machine.
//
// A run loads the settings, checks the lock marker for the script URI,
// downloads the dependencies and the script, optionally writes the sentinel
// config and installs the guide application, writes the lock marker and
// executes the script. Once the settings are loaded the log files in the work
// dir are uploaded to the blob store on every outcome except a skipped run.
//
// The lock marker is <lock dir>/<SHA-256 of the script URI>.lock. It is
// created exclusively right before execution, so a script whose execution
// failed is not retried by a later run.
package provisioner
