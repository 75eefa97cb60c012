/*
Package markdown converts flashcard HTML into Obsidian-flavoured Markdown.

Conversion runs in a fixed sequence of stages:

 1. style and script elements, and type-answer placeholders, are removed
 2. cloze markers {{cN::answer}} and {{cN::answer::hint}} become mark
    elements, rendered as ==answer==
 3. img, audio, video and source tags that point to package media become
    ![[basename]] embeds
 4. legacy [sound:file] references become ![[file]] embeds
 5. the remaining HTML is parsed into a node tree and rendered by a
    recursive visitor (headings, emphasis, lists, tables, code, links)
 6. embeds escaped as element text are restored
 7. whitespace is normalized: no more than one blank line in a row, no
    trailing spaces, trimmed ends

Stages 2 to 4 work on the raw string because vendor syntax is not HTML and
would be split across text nodes by the parser.

Text inside an element is escaped, so a literal "# x" or "*x*" in a card
stays literal. Text outside any element is taken as Markdown already and
keeps its line structure; the output of Structural is such text, which
makes Structural a no-op on its own output.

Embedded basenames have any query or fragment removed, are URL-decoded and
are returned alongside the Markdown so the caller can copy exactly the
media a card refers to. Sources that point to remote locations (http,
https, data URIs) are left to the renderer, which emits ordinary Markdown
images and links, and are not reported as package media.

Convert is a pure function and safe for concurrent use.
*/
package markdown
