// Package watch nudges pipelines when new files land in their source
// directories. It never decides what to import; it only pulls the next
// scheduled cycle forward after activity settles.
package watch
