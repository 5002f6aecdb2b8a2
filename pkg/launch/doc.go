// Package launch builds the OCI runtime spec template attached to every
// deployment.placed notification. Nodes fill in the root filesystem from the
// image or the IPFS content and start the workload with their own runtime.
package launch
