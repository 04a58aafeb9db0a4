// Package deploy walks an application's start-sequence groups during
// DEPLOYMENT, issuing start requests through the procmgr contract for
// whatever process isn't running yet.
package deploy
