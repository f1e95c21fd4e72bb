// Package instanceutils groups the components of the script provisioning agent
// that run on the provisioned machine.
//
// # Subpackages
//
//   - autoprovision: the agent binary
//   - provisioner: the run sequence, lock marker and log upload
//   - configresolver: handler settings loading and protected settings decryption
//   - downloader: file downloads with fixed-delay retries
//   - dnsutil: DNS cache flush between download attempts
//   - scriptrunner: script execution (.sh in-process, .ps1, executables)
//   - guide: guide application installer
package instanceutils
