// Package guide installs the guide application that takes over once the
// provisioning script has run. The installer receives the storage account
// credential through a JSON file with the fields StorageAccountName and
// StorageAccountKey.
package guide
