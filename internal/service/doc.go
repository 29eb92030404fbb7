// Package service contains the work bodies executed inside background
// tasks: feed refresh, episode download, OPML import and scheduled
// maintenance. Services report progress through the task layer and
// persist results through the store interfaces.
package service
