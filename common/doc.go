// Package common holds the logger setup and build metadata shared by the binaries.
package common
